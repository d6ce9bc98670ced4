package scraper

import (
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/sources"
)

// first returns the first non-empty string among paths.
func first(item gjson.Result, paths ...string) string {
	for _, p := range paths {
		r := item.Get(p)
		if r.IsObject() || r.IsArray() {
			continue
		}
		if v := strings.TrimSpace(r.String()); v != "" {
			return v
		}
	}
	return ""
}

func normalize(item gjson.Result, now time.Time) (catalog.NormalizedJob, error) {
	if !item.IsObject() {
		return catalog.NormalizedJob{}, errors.New("item is not an object")
	}

	job := catalog.NormalizedJob{
		ExternalID: first(item, "id", "jobId", "jobKey"),
		Title:      first(item, "title", "positionName", "jobTitle"),
		Company:    first(item, "companyName", "company.name", "company"),
		Location:   first(item, "location", "jobLocation", "formattedLocation"),
		URL:        first(item, "url", "jobUrl", "link", "externalApplyLink"),
		PostedAt:   sources.ParseDate(first(item, "postingDateParsed", "postedAt", "datePosted", "postedDate"), now),
	}
	if job.Title == "" || job.URL == "" {
		return catalog.NormalizedJob{}, errors.New("item misses title or url")
	}

	job.Description = first(item, "description")
	if job.Description == "" {
		job.Description = sources.HTMLToText(first(item, "descriptionHTML", "descriptionHtml"))
	}
	job.Salary = sources.ParseSalary(first(item, "salary", "salaryText", "salarySnippet.text"))

	var explicit catalog.WorkMode
	if remote := item.Get("isRemote"); remote.Exists() && remote.Bool() {
		explicit = catalog.WorkModeRemote
	}
	job.WorkMode = catalog.ClassifyWorkMode(catalog.WorkModeHint{
		Explicit:    explicit,
		Title:       job.Title,
		Location:    job.Location,
		Description: job.Description,
	})

	return job, nil
}
