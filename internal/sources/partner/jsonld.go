package partner

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/sources"
)

const jobPostingType = "JobPosting"

// jobPostings returns every JobPosting object in a JSON-LD block, looking
// through top-level arrays and @graph containers.
func jobPostings(block string) []gjson.Result {
	block = strings.TrimSpace(block)
	if block == "" || !gjson.Valid(block) {
		return nil
	}

	var out []gjson.Result
	var walk func(r gjson.Result)
	walk = func(r gjson.Result) {
		switch {
		case r.IsArray():
			r.ForEach(func(_, item gjson.Result) bool {
				walk(item)
				return true
			})
		case r.IsObject():
			if isJobPosting(r.Get("@type")) {
				out = append(out, r)
				return
			}
			if graph := r.Get("@graph"); graph.Exists() {
				walk(graph)
			}
		}
	}
	walk(gjson.Parse(block))

	return out
}

func isJobPosting(t gjson.Result) bool {
	if t.IsArray() {
		for _, item := range t.Array() {
			if item.String() == jobPostingType {
				return true
			}
		}
		return false
	}
	return t.String() == jobPostingType
}

func normalize(p gjson.Result, pageURL *url.URL, company string, now time.Time) (catalog.NormalizedJob, error) {
	title := strings.TrimSpace(p.Get("title").String())
	if title == "" {
		return catalog.NormalizedJob{}, errors.New("posting without title")
	}

	link := pageURL.String()
	if raw := strings.TrimSpace(p.Get("url").String()); raw != "" {
		if ref, err := pageURL.Parse(raw); err == nil {
			link = ref.String()
		}
	}

	if name := strings.TrimSpace(p.Get("hiringOrganization.name").String()); name != "" {
		company = name
	}

	job := catalog.NormalizedJob{
		ExternalID:  identifier(p),
		Title:       title,
		Company:     company,
		Description: sources.HTMLToText(p.Get("description").String()),
		PostedAt:    sources.ParseDate(p.Get("datePosted").String(), now),
		URL:         link,
		Salary:      salary(p.Get("baseSalary")),
	}
	job.Location, job.RegionCode = location(p.Get("jobLocation"))

	for _, key := range []string{"qualifications", "skills", "experienceRequirements"} {
		v := p.Get(key)
		switch {
		case v.IsArray():
			for _, item := range v.Array() {
				if s := strings.TrimSpace(item.String()); s != "" {
					job.Requirements = append(job.Requirements, s)
				}
			}
		case v.Type == gjson.String:
			job.Requirements = append(job.Requirements, sources.SplitRequirements(sources.HTMLToText(v.String()))...)
		}
	}

	var explicit catalog.WorkMode
	if strings.EqualFold(p.Get("jobLocationType").String(), "TELECOMMUTE") {
		explicit = catalog.WorkModeRemote
		if job.Location != "" {
			// TELECOMMUTE with a physical office means both
			explicit = catalog.WorkModeHybrid
		}
	}
	job.WorkMode = catalog.ClassifyWorkMode(catalog.WorkModeHint{
		Explicit:    explicit,
		Title:       job.Title,
		Location:    job.Location,
		Description: job.Description,
	})

	return job, nil
}

func identifier(p gjson.Result) string {
	id := p.Get("identifier")
	if id.IsObject() {
		return id.Get("value").String()
	}
	return id.String()
}

func location(l gjson.Result) (string, string) {
	if l.IsArray() {
		if len(l.Array()) == 0 {
			return "", ""
		}
		l = l.Array()[0]
	}
	addr := l.Get("address")
	if addr.Type == gjson.String {
		return strings.TrimSpace(addr.String()), ""
	}

	var parts []string
	for _, key := range []string{"addressLocality", "addressRegion"} {
		if v := strings.TrimSpace(addr.Get(key).String()); v != "" {
			parts = append(parts, v)
		}
	}
	country := addr.Get("addressCountry")
	if country.IsObject() {
		country = country.Get("name")
	}
	code := strings.TrimSpace(country.String())
	if len(parts) == 0 && code != "" {
		parts = append(parts, code)
	}

	return strings.Join(parts, ", "), strings.ToUpper(code)
}

func salary(b gjson.Result) catalog.Salary {
	if !b.Exists() {
		return catalog.Salary{}
	}
	value := b.Get("value")
	var s catalog.Salary

	pick := func(r gjson.Result) *int {
		if !r.Exists() || r.Float() <= 0 {
			return nil
		}
		v := int(r.Float())
		return &v
	}

	switch {
	case value.IsObject():
		s.Min = pick(value.Get("minValue"))
		s.Max = pick(value.Get("maxValue"))
		if s.IsZero() {
			s.Min = pick(value.Get("value"))
		}
	case value.Type == gjson.Number:
		s.Min = pick(value)
	case value.Type == gjson.String:
		s = sources.ParseSalary(value.String())
	}

	if s.IsZero() {
		return catalog.Salary{}
	}
	if currency := b.Get("currency").String(); currency != "" {
		s.Currency = strings.ToUpper(currency)
	}
	return s
}
