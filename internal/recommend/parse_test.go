package recommend

import (
	"strings"
	"testing"
)

func TestParseMatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		raw       string
		wantErr   bool
		score     int
		label     Label
		strengths int
		concerns  int
	}{
		{
			name:      "plain object",
			raw:       `{"score": 72, "strengths": ["Go"], "concerns": ["No k8s"], "recommendation": "good", "summary": "Solid"}`,
			score:     72,
			label:     LabelGood,
			strengths: 1,
			concerns:  1,
		},
		{
			name:      "fenced with language tag",
			raw:       "```json\n{\"score\": 85, \"strengths\": [\"a\", \"b\"], \"concerns\": []}\n```",
			score:     85,
			label:     LabelStrong,
			strengths: 2,
		},
		{
			name:     "chatty prefix and trailing text",
			raw:      "Sure! Here is the result: {\"score\": 41, \"strengths\": [], \"concerns\": [\"far\"]} Hope this helps {}",
			score:    41,
			label:    LabelFair,
			concerns: 1,
		},
		{
			name:      "braces inside strings",
			raw:       `{"score": 65, "strengths": ["uses {templates}"], "concerns": ["quote \" }"]}`,
			score:     65,
			label:     LabelGood,
			strengths: 1,
			concerns:  1,
		},
		{
			name:  "model label is ignored",
			raw:   `{"score": 30, "strengths": [], "concerns": [], "recommendation": "strong"}`,
			score: 30,
			label: LabelWeak,
		},
		{
			name:  "score clamped high",
			raw:   `{"score": 140, "strengths": [], "concerns": []}`,
			score: 100,
			label: LabelStrong,
		},
		{
			name:  "score clamped low",
			raw:   `{"score": -3, "strengths": [], "concerns": []}`,
			score: 0,
			label: LabelWeak,
		},
		{
			name:  "numeric string score",
			raw:   `{"score": " 59.6 ", "strengths": [], "concerns": []}`,
			score: 60,
			label: LabelGood,
		},
		{
			name:      "lists capped and cleaned",
			raw:       `{"score": 50, "strengths": ["1", " ", 2, "3", "4", "5", "6", "7"], "concerns": []}`,
			score:     50,
			label:     LabelFair,
			strengths: 5,
		},
		{name: "missing score", raw: `{"strengths": [], "concerns": []}`, wantErr: true},
		{name: "missing concerns", raw: `{"score": 50, "strengths": []}`, wantErr: true},
		{name: "word score", raw: `{"score": "high", "strengths": [], "concerns": []}`, wantErr: true},
		{name: "no object", raw: "I cannot help with that.", wantErr: true},
		{name: "unterminated object", raw: `{"score": 50, "strengths": [`, wantErr: true},
		{name: "invalid json", raw: `{score: 50}`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseMatch(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Score != tc.score || got.Recommendation != tc.label {
				t.Fatalf("got score %d label %s, want %d %s", got.Score, got.Recommendation, tc.score, tc.label)
			}
			if len(got.Strengths) != tc.strengths || len(got.Concerns) != tc.concerns {
				t.Fatalf("got %d strengths %d concerns, want %d %d", len(got.Strengths), len(got.Concerns), tc.strengths, tc.concerns)
			}
		})
	}
}

func TestLabelFor(t *testing.T) {
	t.Parallel()

	cases := map[int]Label{100: LabelStrong, 80: LabelStrong, 79: LabelGood, 60: LabelGood, 59: LabelFair, 40: LabelFair, 39: LabelWeak, 0: LabelWeak}
	for score, want := range cases {
		if got := LabelFor(score); got != want {
			t.Fatalf("LabelFor(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestFallback(t *testing.T) {
	f := Fallback("j1")
	if f.Score != 50 || f.Recommendation != LabelFair || !f.Fallback || f.JobID != "j1" {
		t.Fatalf("unexpected fallback: %+v", f)
	}
	if len(f.Strengths) == 0 || len(f.Concerns) == 0 {
		t.Fatalf("fallback must carry generic strengths and concerns")
	}
}

func TestBuildPromptCondenses(t *testing.T) {
	long := strings.Repeat("x", 50)
	prompt, err := buildPrompt(promptProfile{Skills: []string{"Go"}}, promptJob{Title: "Backend", Description: long[:10]})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(prompt, "{{") {
		t.Fatalf("placeholders left in prompt: %s", prompt)
	}
	if !strings.Contains(prompt, `"title": "Backend"`) || !strings.Contains(prompt, `"Go"`) {
		t.Fatalf("payload missing from prompt: %s", prompt)
	}
}
