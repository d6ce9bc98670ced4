package embedding

import (
	"fmt"
	"strings"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/profile"
	"github.com/spigell/job-radar/internal/utils"
)

// JobText serializes the salient job fields in a fixed order so equal jobs
// always produce equal text.
func JobText(job *catalog.JobPosting, descriptionLimit int) string {
	var b strings.Builder
	line(&b, "Title", job.Title)
	line(&b, "Company", job.Company)
	line(&b, "Location", job.Location)
	line(&b, "Work mode", string(job.WorkMode))
	if len(job.Requirements) > 0 {
		line(&b, "Requirements", strings.Join(job.Requirements, "; "))
	}
	desc := job.Description
	if descriptionLimit > 0 {
		desc = utils.TruncateForLog(desc, descriptionLimit)
	}
	line(&b, "Description", desc)
	return strings.TrimSpace(b.String())
}

// ProfileText serializes a profile, keeping only the most recent roles and
// education entries.
func ProfileText(p *profile.Profile, roles, education int) string {
	var b strings.Builder
	line(&b, "Bio", p.Bio)
	line(&b, "Skills", strings.Join(p.Skills, ", "))
	line(&b, "Location", p.Location)

	for _, r := range p.RecentRoles(roles) {
		role := r.Title
		if r.Company != "" {
			role = fmt.Sprintf("%s at %s", r.Title, r.Company)
		}
		if r.Summary != "" {
			role += ": " + r.Summary
		}
		line(&b, "Role", role)
	}
	for _, e := range p.RecentEducation(education) {
		parts := make([]string, 0, 3)
		for _, v := range []string{e.Degree, e.Field, e.Institution} {
			if v != "" {
				parts = append(parts, v)
			}
		}
		line(&b, "Education", strings.Join(parts, ", "))
	}

	prefs := p.Preferences
	line(&b, "Desired titles", strings.Join(prefs.DesiredTitles, ", "))
	line(&b, "Desired locations", strings.Join(prefs.Locations, ", "))
	line(&b, "Desired work mode", string(prefs.WorkMode))
	return strings.TrimSpace(b.String())
}

func line(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}
