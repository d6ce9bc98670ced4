package catalog

import "strings"

var (
	hybridKeywords = []string{"hybrid", "гибрид", "partially remote", "part remote"}
	remoteKeywords = []string{"remote", "work from home", "wfh", "telecommute", "anywhere", "удален", "удалён"}
)

// WorkModeHint carries everything an adapter knows about a posting's work mode.
// Explicit is the source's own structured flag and wins when set.
type WorkModeHint struct {
	Explicit    WorkMode
	Title       string
	Location    string
	Description string
}

// ClassifyWorkMode resolves the work mode in priority order: explicit flag,
// title keyword, location keyword, description keyword, then on-site.
func ClassifyWorkMode(h WorkModeHint) WorkMode {
	if h.Explicit.Valid() {
		return h.Explicit
	}
	for _, text := range []string{h.Title, h.Location, h.Description} {
		if mode, ok := keywordMode(text); ok {
			return mode
		}
	}
	return WorkModeOnSite
}

func keywordMode(text string) (WorkMode, bool) {
	lower := strings.ToLower(text)
	if lower == "" {
		return "", false
	}
	// hybrid first: "hybrid remote" is hybrid
	for _, kw := range hybridKeywords {
		if strings.Contains(lower, kw) {
			return WorkModeHybrid, true
		}
	}
	for _, kw := range remoteKeywords {
		if strings.Contains(lower, kw) {
			return WorkModeRemote, true
		}
	}
	return "", false
}
