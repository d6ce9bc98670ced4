package recommend

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

const maxListItems = 5

var (
	errNoJSON      = errors.New("no json object in model output")
	errInvalidJSON = errors.New("model output is not valid json")
)

// Label is the categorical recommendation of a match.
type Label string

const (
	LabelStrong Label = "strong"
	LabelGood   Label = "good"
	LabelFair   Label = "fair"
	LabelWeak   Label = "weak"
)

// LabelFor derives the label from a score so it never drifts from it.
func LabelFor(score int) Label {
	switch {
	case score >= 80:
		return LabelStrong
	case score >= 60:
		return LabelGood
	case score >= 40:
		return LabelFair
	default:
		return LabelWeak
	}
}

// Match is a scored (profile, job) pair.
type Match struct {
	JobID          string   `json:"job_id"`
	Score          int      `json:"score"`
	Strengths      []string `json:"strengths"`
	Concerns       []string `json:"concerns"`
	Recommendation Label    `json:"recommendation"`
	Summary        string   `json:"summary,omitempty"`
	Fallback       bool     `json:"fallback,omitempty"`
}

// Fallback is the neutral result used when scoring fails.
func Fallback(jobID string) Match {
	return Match{
		JobID:          jobID,
		Score:          50,
		Strengths:      []string{"Role is recent and matches your search area"},
		Concerns:       []string{"Automatic fit analysis is unavailable right now"},
		Recommendation: LabelFair,
		Fallback:       true,
	}
}

// ParseMatch reads a model reply. It accepts fenced or chatty output as long as
// the first JSON object carries a numeric score and both lists.
func ParseMatch(raw string) (Match, error) {
	obj, err := firstObject(stripFences(raw))
	if err != nil {
		return Match{}, err
	}
	if !gjson.Valid(obj) {
		return Match{}, errInvalidJSON
	}

	doc := gjson.Parse(obj)

	scoreField := doc.Get("score")
	var score float64
	switch scoreField.Type {
	case gjson.Number:
		score = scoreField.Float()
	case gjson.String:
		if _, err := fmt.Sscanf(strings.TrimSpace(scoreField.Str), "%g", &score); err != nil {
			return Match{}, fmt.Errorf("score %q is not a number", scoreField.Str)
		}
	default:
		return Match{}, errors.New("score is missing")
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Match{}, errors.New("score is not finite")
	}

	strengths, err := stringList(doc, "strengths")
	if err != nil {
		return Match{}, err
	}
	concerns, err := stringList(doc, "concerns")
	if err != nil {
		return Match{}, err
	}

	clamped := int(math.Round(math.Max(0, math.Min(100, score))))
	return Match{
		Score:          clamped,
		Strengths:      strengths,
		Concerns:       concerns,
		Recommendation: LabelFor(clamped),
		Summary:        strings.TrimSpace(doc.Get("summary").String()),
	}, nil
}

func stringList(doc gjson.Result, field string) ([]string, error) {
	list := doc.Get(field)
	if !list.IsArray() {
		return nil, fmt.Errorf("%s must be an array", field)
	}
	out := make([]string, 0, maxListItems)
	for _, item := range list.Array() {
		if len(out) == maxListItems {
			break
		}
		if item.Type != gjson.String {
			continue
		}
		if text := strings.TrimSpace(item.Str); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "```")
	if start == -1 {
		return raw
	}
	body := raw[start+3:]
	// drop the language tag line
	if nl := strings.IndexByte(body, '\n'); nl != -1 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// firstObject returns the first balanced {...} span, ignoring braces in strings.
func firstObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", errNoJSON
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errNoJSON
}
