package headhunter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/sources"
)

const searchOrder = "publication_time"

// Adapter turns hh.ru vacancies into normalized jobs.
type Adapter struct {
	client *Client
	// areas maps lowercased location names to hh.ru area ids.
	areas  map[string]int
	period uint
	now    func() time.Time
}

// NewAdapter wraps client. areas resolves free-text locations into hh.ru area
// ids; a location that is not listed and is not numeric searches all areas.
func NewAdapter(client *Client, areas map[string]int, periodDays uint) *Adapter {
	normalized := make(map[string]int, len(areas))
	for name, id := range areas {
		normalized[strings.ToLower(strings.TrimSpace(name))] = id
	}
	return &Adapter{client: client, areas: normalized, period: periodDays, now: time.Now}
}

func (a *Adapter) Source() catalog.Source {
	return catalog.SourceHeadHunter
}

func (a *Adapter) Search(ctx context.Context, q sources.Query) (sources.Result, error) {
	params := &SearchParams{
		Text:    q.Text,
		OrderBy: searchOrder,
		Period:  a.period,
	}
	if area, ok := a.resolveArea(q.Location); ok {
		params.Areas = []int{area}
	} else if q.Location != "" {
		a.client.logger.Debug("unknown hh.ru area, searching everywhere", zap.String("location", q.Location))
	}

	vacancies, err := a.client.Search(ctx, params, q.PageLimit)
	if err != nil {
		return sources.Result{}, fmt.Errorf("search vacancies: %w", err)
	}

	jobs := make([]catalog.NormalizedJob, 0, vacancies.Len())
	skipped := vacancies.Skipped
	for _, v := range vacancies.Items {
		job, ok := a.normalize(v)
		if !ok {
			skipped++
			a.client.logger.Debug("dropping incomplete vacancy", zap.String("id", v.ID))
			continue
		}
		jobs = append(jobs, job)
	}
	if skipped > 0 {
		a.client.logger.Warn("skipped malformed vacancies", zap.Int("skipped", skipped), zap.Int("kept", len(jobs)))
	}

	return sources.Result{Jobs: jobs, Dropped: skipped}, nil
}

func (a *Adapter) resolveArea(location string) (int, bool) {
	location = strings.ToLower(strings.TrimSpace(location))
	if location == "" {
		return 0, false
	}
	if id, ok := a.areas[location]; ok {
		return id, true
	}
	if id, err := strconv.Atoi(location); err == nil {
		return id, true
	}
	return 0, false
}

func (a *Adapter) normalize(v *Vacancy) (catalog.NormalizedJob, bool) {
	if v == nil || v.Archived || strings.TrimSpace(v.Name) == "" || v.AlternateURL == "" {
		return catalog.NormalizedJob{}, false
	}

	location := v.Area.Name
	if v.Address != nil && v.Address.City != "" {
		location = v.Address.City
	}

	description := v.Description
	if description == "" {
		description = strings.TrimSpace(v.Snipet.Responsibility + "\n" + v.Snipet.Requirement)
	}
	description = sources.HTMLToText(description)

	requirements := make([]string, 0, len(v.KeySkills))
	for _, skill := range v.KeySkills {
		if skill.Name != "" {
			requirements = append(requirements, skill.Name)
		}
	}
	if len(requirements) == 0 && v.Snipet.Requirement != "" {
		requirements = sources.SplitRequirements(sources.HTMLToText(v.Snipet.Requirement))
	}

	job := catalog.NormalizedJob{
		ExternalID:   v.ID,
		Title:        strings.TrimSpace(v.Name),
		Company:      strings.TrimSpace(v.Employer.Name),
		Location:     location,
		RegionCode:   v.Area.ID,
		Description:  description,
		Requirements: requirements,
		Salary:       salary(v),
		PostedAt:     sources.ParseDate(v.PublishedAt, a.now()),
		URL:          v.AlternateURL,
	}
	job.WorkMode = catalog.ClassifyWorkMode(catalog.WorkModeHint{
		Explicit:    explicitWorkMode(v),
		Title:       job.Title,
		Location:    job.Location,
		Description: job.Description,
	})

	return job, true
}

func salary(v *Vacancy) catalog.Salary {
	if v.Salary == nil {
		return catalog.Salary{}
	}
	var s catalog.Salary
	if v.Salary.From > 0 {
		from := v.Salary.From
		s.Min = &from
	}
	if v.Salary.To > 0 {
		to := v.Salary.To
		s.Max = &to
	}
	if !s.IsZero() {
		s.Currency = v.Salary.Currency
		if s.Currency == "RUR" {
			s.Currency = "RUB"
		}
	}
	return s
}

// explicitWorkMode reads hh.ru's structured flags: work_format when present,
// the legacy schedule otherwise.
func explicitWorkMode(v *Vacancy) catalog.WorkMode {
	var remote, onSite bool
	for _, format := range v.WorkFormat {
		switch format.ID {
		case "HYBRID":
			return catalog.WorkModeHybrid
		case "REMOTE":
			remote = true
		case "ON_SITE":
			onSite = true
		}
	}
	switch {
	case remote && onSite:
		return catalog.WorkModeHybrid
	case remote:
		return catalog.WorkModeRemote
	case onSite:
		return catalog.WorkModeOnSite
	}
	if v.Schedule.ID == "remote" {
		return catalog.WorkModeRemote
	}
	return ""
}
