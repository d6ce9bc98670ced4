package sources

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/spigell/job-radar/internal/catalog"
)

var (
	salaryNumberExpr = regexp.MustCompile(`(\d[\d,.\s]*)\s*([kKmM]?)\b`)
	relativeDateExpr = regexp.MustCompile(`(\d+)\s*\+?\s*(minute|hour|day|week|month)s?\s+ago`)
	currencySymbols  = map[string]string{"$": "USD", "€": "EUR", "£": "GBP", "₽": "RUB"}
	currencyCodes    = []string{"USD", "EUR", "GBP", "RUB", "RUR", "KZT", "CAD", "AUD", "CHF", "PLN"}
	dateLayouts      = []string{
		time.RFC3339,
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"Jan 2, 2006",
		"2 Jan 2006",
	}
)

// ParseSalary extracts a min/max range from free text such as
// "$120k - $150k", "от 200 000 до 300 000 руб." or "90,000 EUR".
func ParseSalary(text string) catalog.Salary {
	var s catalog.Salary
	text = strings.TrimSpace(text)
	if text == "" {
		return s
	}

	s.Currency = detectCurrency(text)

	var values []int
	for _, m := range salaryNumberExpr.FindAllStringSubmatch(text, -1) {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			if r == '.' {
				return r
			}
			return -1
		}, m[1])
		// "1.5" stays fractional only with a multiplier; otherwise dots are separators
		if m[2] == "" {
			digits = strings.ReplaceAll(digits, ".", "")
		}
		f, err := strconv.ParseFloat(digits, 64)
		if err != nil || f == 0 {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "k":
			f *= 1_000
		case "m":
			f *= 1_000_000
		}
		values = append(values, int(f))
	}

	switch {
	case len(values) == 0:
		return catalog.Salary{}
	case len(values) == 1:
		v := values[0]
		lower := strings.ToLower(text)
		if strings.Contains(lower, "up to") || (strings.Contains(lower, "до ") && !strings.Contains(lower, "от ")) {
			s.Max = &v
		} else {
			s.Min = &v
		}
	default:
		lo, hi := values[0], values[1]
		if lo > hi {
			lo, hi = hi, lo
		}
		s.Min, s.Max = &lo, &hi
	}
	return s
}

func detectCurrency(text string) string {
	for symbol, code := range currencySymbols {
		if strings.Contains(text, symbol) {
			return code
		}
	}
	upper := strings.ToUpper(text)
	for _, code := range currencyCodes {
		if strings.Contains(upper, code) {
			if code == "RUR" {
				return "RUB"
			}
			return code
		}
	}
	if strings.Contains(strings.ToLower(text), "руб") {
		return "RUB"
	}
	return ""
}

// ParseDate understands the absolute layouts used by the supported sources and
// relative phrases like "3 days ago". The zero time is returned when nothing matches.
func ParseDate(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil && unix > 0 {
		if unix > 1e12 {
			return time.UnixMilli(unix).UTC()
		}
		return time.Unix(unix, 0).UTC()
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "just now"), strings.Contains(lower, "today"):
		return now.UTC()
	case strings.Contains(lower, "yesterday"):
		return now.AddDate(0, 0, -1).UTC()
	}
	if m := relativeDateExpr.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute).UTC()
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour).UTC()
		case "day":
			return now.AddDate(0, 0, -n).UTC()
		case "week":
			return now.AddDate(0, 0, -7*n).UTC()
		case "month":
			return now.AddDate(0, -n, 0).UTC()
		}
	}
	return time.Time{}
}

// HTMLToText flattens an HTML fragment into whitespace-normalized text.
func HTMLToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("br, p, li, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// SplitRequirements turns a bullet-ish block into an ordered list of requirements.
func SplitRequirements(text string) []string {
	text = strings.NewReplacer("•", "\n", "·", "\n", ";", "\n").Replace(text)
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
