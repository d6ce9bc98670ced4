package catalog

import "testing"

func TestClassifyWorkMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hint WorkModeHint
		want WorkMode
	}{
		{
			name: "explicit flag wins over keywords",
			hint: WorkModeHint{Explicit: WorkModeOnSite, Title: "Remote Go Developer"},
			want: WorkModeOnSite,
		},
		{
			name: "title keyword beats location keyword",
			hint: WorkModeHint{Title: "Hybrid Backend Engineer", Location: "Remote, EU"},
			want: WorkModeHybrid,
		},
		{
			name: "location keyword beats description",
			hint: WorkModeHint{Title: "Backend Engineer", Location: "Remote", Description: "hybrid office days"},
			want: WorkModeRemote,
		},
		{
			name: "description keyword",
			hint: WorkModeHint{Title: "Backend Engineer", Location: "Berlin", Description: "You can work from home"},
			want: WorkModeRemote,
		},
		{
			name: "hybrid remote phrase is hybrid",
			hint: WorkModeHint{Title: "Engineer (hybrid remote)"},
			want: WorkModeHybrid,
		},
		{
			name: "default on-site",
			hint: WorkModeHint{Title: "Backend Engineer", Location: "Berlin"},
			want: WorkModeOnSite,
		},
		{
			name: "invalid explicit value is ignored",
			hint: WorkModeHint{Explicit: WorkMode("flexible"), Title: "Remote SRE"},
			want: WorkModeRemote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyWorkMode(tt.hint); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
