package sources

import (
	"reflect"
	"testing"
	"time"
)

func TestParseSalary(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		min, max int
		currency string
	}{
		{name: "dollar range with k", in: "$120k - $150k", min: 120000, max: 150000, currency: "USD"},
		{name: "russian range", in: "от 200 000 до 300 000 руб.", min: 200000, max: 300000, currency: "RUB"},
		{name: "upper bound only", in: "up to 90,000 EUR", max: 90000, currency: "EUR"},
		{name: "single value", in: "£45,000", min: 45000, currency: "GBP"},
		{name: "reversed range", in: "150000 - 100000 USD", min: 100000, max: 150000, currency: "USD"},
		{name: "no numbers", in: "competitive"},
		{name: "empty", in: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSalary(tt.in)
			if deref(got.Min) != tt.min || deref(got.Max) != tt.max {
				t.Fatalf("range = %d-%d, want %d-%d", deref(got.Min), deref(got.Max), tt.min, tt.max)
			}
			if tt.min == 0 && tt.max == 0 {
				if !got.IsZero() {
					t.Fatalf("expected zero salary, got %+v", got)
				}
				return
			}
			if got.Currency != tt.currency {
				t.Fatalf("currency = %q, want %q", got.Currency, tt.currency)
			}
		})
	}
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func TestParseDate(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-03-01T10:00:00+0300", want: time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)},
		{in: "2024-03-01T10:00:00Z", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{in: "1709251200", want: time.Unix(1709251200, 0).UTC()},
		{in: "3 days ago", want: now.AddDate(0, 0, -3)},
		{in: "Posted 2 hours ago", want: now.Add(-2 * time.Hour)},
		{in: "yesterday", want: now.AddDate(0, 0, -1)},
		{in: "sometime", want: time.Time{}},
		{in: "", want: time.Time{}},
	}

	for _, tt := range tests {
		if got := ParseDate(tt.in, now); !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	if got := HTMLToText("<p>Hello</p><p>World &amp; friends</p>"); got != "Hello World & friends" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := HTMLToText("  plain\n text "); got != "plain text" {
		t.Fatalf("unexpected plain text %q", got)
	}
}

func TestSplitRequirements(t *testing.T) {
	got := SplitRequirements("- Go\n- SQL; Docker\n\n• Kubernetes")
	want := []string{"Go", "SQL", "Docker", "Kubernetes"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestQueryKey(t *testing.T) {
	a := Query{Text: " Go Developer ", Location: "Berlin"}
	b := Query{Text: "go developer", Location: " berlin"}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %q vs %q", a.Key(), b.Key())
	}
}
