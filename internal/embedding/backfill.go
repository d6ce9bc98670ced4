package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
)

// MissingLister lists catalog jobs that have no vector or a vector older
// than their last update.
type MissingLister interface {
	MissingEmbeddings(ctx context.Context, limit int) ([]*catalog.JobPosting, error)
}

// Backfill embeds missing vectors page by page until none are left.
func (p *Pipeline) Backfill(ctx context.Context, lister MissingLister, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = p.cfg.BatchSize
	}

	total := 0
	for {
		jobs, err := lister.MissingEmbeddings(ctx, pageSize)
		if err != nil {
			return total, fmt.Errorf("list missing embeddings: %w", err)
		}
		if len(jobs) == 0 {
			return total, nil
		}

		n, err := p.EmbedJobs(ctx, jobs)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		p.logger.Info("backfilled embeddings", zap.Int("page", n), zap.Int("total", total))
	}
}
