package quota

import "context"

type ImportStore interface {
	CreateImport(ctx context.Context, req *ImportRequest) error
	// TransitionImport reports false when the request exists but its status
	// is not in t.From, and ErrNotFound when it does not exist.
	TransitionImport(ctx context.Context, t Transition) (bool, error)
	// LastCompletedImport returns nil, nil when the user never completed one.
	LastCompletedImport(ctx context.Context, userID string) (*ImportRequest, error)
	ListImports(ctx context.Context, userID string, limit int) ([]ImportRequest, error)
}

type UsageStore interface {
	Usage(ctx context.Context, userID, month string) (map[Action]int, error)
	// IncrementUsage upserts the counter and returns the new value.
	IncrementUsage(ctx context.Context, userID, month string, action Action, amount int) (int, error)
	// DeleteUsageBefore removes counters of months strictly before month.
	DeleteUsageBefore(ctx context.Context, month string) (int64, error)
}

// TierStore reads the user's subscription tier name. An empty name means the
// default tier.
type TierStore interface {
	UserTier(ctx context.Context, userID string) (string, error)
}
