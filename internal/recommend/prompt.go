package recommend

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/profile"
	"github.com/spigell/job-radar/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

type promptRole struct {
	Title   string `json:"title"`
	Company string `json:"company"`
	Summary string `json:"summary,omitempty"`
	Current bool   `json:"current,omitempty"`
}

type promptEducation struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
}

type promptProfile struct {
	Skills    []string          `json:"skills"`
	Location  string            `json:"location,omitempty"`
	Bio       string            `json:"bio,omitempty"`
	Roles     []promptRole      `json:"recent_roles,omitempty"`
	Education []promptEducation `json:"education,omitempty"`
}

type promptJob struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location,omitempty"`
	Remote      bool   `json:"remote"`
	Description string `json:"description"`
}

func condenseProfile(p *profile.Profile, roles, education int) promptProfile {
	out := promptProfile{
		Skills:   utils.CompactStrings(p.Skills),
		Location: strings.TrimSpace(p.Location),
		Bio:      strings.TrimSpace(p.Bio),
	}
	for _, r := range p.RecentRoles(roles) {
		out.Roles = append(out.Roles, promptRole{
			Title:   r.Title,
			Company: r.Company,
			Summary: r.Summary,
			Current: r.EndedAt == nil,
		})
	}
	for _, e := range p.RecentEducation(education) {
		out.Education = append(out.Education, promptEducation{
			Institution: e.Institution,
			Degree:      e.Degree,
			Field:       e.Field,
		})
	}
	return out
}

func condenseJob(job *catalog.JobPosting, descLimit int) promptJob {
	return promptJob{
		Title:       job.Title,
		Company:     job.Company,
		Location:    job.Location,
		Remote:      job.WorkMode == catalog.WorkModeRemote,
		Description: utils.TruncateForLog(job.Description, descLimit),
	}
}

func buildPrompt(p promptProfile, j promptJob) (string, error) {
	profileJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal profile payload: %w", err)
	}
	jobJSON, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	prompt := strings.ReplaceAll(promptTemplate, "{{PROFILE_JSON}}", string(profileJSON))
	prompt = strings.ReplaceAll(prompt, "{{JOB_JSON}}", string(jobJSON))
	return prompt, nil
}
