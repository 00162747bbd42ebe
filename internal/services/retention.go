// Package services – Retention
//
// Retention trims the raw news and topic snapshot collections to their
// configured windows, either once or on a fixed interval.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Pruner keeps the newest keep documents of a collection.
type Pruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

// Retention prunes News to NewsKeep and Topics to TopicKeep.
type Retention struct {
	News      Pruner
	Topics    Pruner
	NewsKeep  int
	TopicKeep int
}

// RetentionResult reports how many documents one pass deleted.
type RetentionResult struct {
	News   int64 `json:"news"`
	Topics int64 `json:"topics"`
}

// RunOnce prunes news, then topics. If pruning news fails, topics are not
// attempted.
func (r *Retention) RunOnce(ctx context.Context) (RetentionResult, error) {
	var res RetentionResult
	var err error

	if r.News != nil {
		if res.News, err = r.News.Prune(ctx, r.NewsKeep); err != nil {
			return res, fmt.Errorf("prune raw news: %w", err)
		}
	}
	if r.Topics != nil {
		if res.Topics, err = r.Topics.Prune(ctx, r.TopicKeep); err != nil {
			return res, fmt.Errorf("prune topic snapshots: %w", err)
		}
	}
	return res, nil
}

// Run executes RunOnce immediately and then every interval until ctx is
// done. A failed pass is logged and retried on the next tick.
func (r *Retention) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", interval).
		Int("news_keep", r.NewsKeep).
		Int("topic_keep", r.TopicKeep).
		Msg("retention job running")

	r.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("retention job stopped")
			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Retention) runLogged(ctx context.Context) {
	res, err := r.RunOnce(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("retention run failed (will retry on next interval)")
		return
	}
	if res.News > 0 || res.Topics > 0 {
		log.Info().Int64("news_deleted", res.News).Int64("topics_deleted", res.Topics).Msg("retention run completed")
	} else {
		log.Debug().Msg("retention run completed, nothing to delete")
	}
}
