package quota

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spigell/job-radar/internal/catalog"
)

// Action is a metered user operation.
type Action string

const (
	ActionJobImport   Action = "job_import"
	ActionApplication Action = "application"
	ActionResume      Action = "resume"
	ActionCoverLetter Action = "cover_letter"
)

// Actions lists every metered action in display order.
var Actions = []Action{ActionJobImport, ActionApplication, ActionResume, ActionCoverLetter}

// Unlimited is the ceiling of unlimited tiers.
const Unlimited = math.MaxInt32

var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrAlreadyFinalized = errors.New("import request already finalized")
	ErrNotFound         = errors.New("import request not found")
)

func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
}

// Limits are per-month ceilings by action.
type Limits map[Action]int

// DefaultTiers are used when configuration does not define tiers.
func DefaultTiers() map[string]Limits {
	return map[string]Limits{
		"free": {
			ActionJobImport:   4,
			ActionApplication: 10,
			ActionResume:      3,
			ActionCoverLetter: 3,
		},
		"pro": {
			ActionJobImport:   30,
			ActionApplication: 100,
			ActionResume:      20,
			ActionCoverLetter: 20,
		},
		"premium": {
			ActionJobImport:   Unlimited,
			ActionApplication: Unlimited,
			ActionResume:      Unlimited,
			ActionCoverLetter: Unlimited,
		},
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Counts struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// ImportRequest is the audit record bracketing one import run.
type ImportRequest struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Sources     []catalog.Source `json:"sources"`
	Status      Status           `json:"status"`
	Counts      Counts           `json:"counts"`
	Error       string           `json:"error,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Transition describes a status change applied atomically by the store: the
// change happens only when the current status is one of From.
type Transition struct {
	ID          string
	From        []Status
	To          Status
	Counts      Counts
	Error       string
	CompletedAt *time.Time
}

// Decision answers CanImport.
type Decision struct {
	Allowed       bool       `json:"allowed"`
	NextAllowedAt *time.Time `json:"next_allowed_at,omitempty"`
}

// Check answers CanPerformAction and feeds usage dashboards.
type Check struct {
	Action    Action `json:"action"`
	Allowed   bool   `json:"allowed"`
	Current   int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Unlimited bool   `json:"unlimited,omitempty"`
}

// MonthKey is the usage counter bucket of t.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
