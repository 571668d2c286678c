package cron

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"vempraca_backend/pkg/metrics"
	"vempraca_backend/pkg/visibility"
)

// BoundLister pages through listings that have a subscription and are not grandfathered.
type BoundLister interface {
	ListBound(ctx context.Context, afterID string, limit int) ([]visibility.Listing, error)
}

// VisibilityBackfill re-reads each bound subscription from the billing
// provider and reconciles the listing, repairing state left by lost webhooks.
type VisibilityBackfill struct {
	listings   BoundLister
	provider   visibility.Provider
	classifier *visibility.Classifier
	reconciler *visibility.Reconciler
	timeouts   visibility.Timeouts
	pageSize   int
}

type BackfillSummary struct {
	Visited    int
	Reconciled int
	Skipped    int
	Failed     int
}

func NewVisibilityBackfill(listings BoundLister, provider visibility.Provider, classifier *visibility.Classifier, reconciler *visibility.Reconciler, timeouts visibility.Timeouts, pageSize int) *VisibilityBackfill {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &VisibilityBackfill{
		listings:   listings,
		provider:   provider,
		classifier: classifier,
		reconciler: reconciler,
		timeouts:   timeouts,
		pageSize:   pageSize,
	}
}

// InitVisibilityBackfillCron schedules the backfill. An empty schedule disables it.
func InitVisibilityBackfillCron(b *VisibilityBackfill, schedule string, runTimeout time.Duration) (*cron.Cron, error) {
	if schedule == "" {
		log.Info().Msg("Visibility backfill cron disabled")
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := b.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Visibility backfill run failed")
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	log.Info().Str("schedule", schedule).Msg("Visibility backfill cron started")
	return c, nil
}

// Run visits every bound listing once. Per-listing failures are logged and
// counted; only a failure to page through listings aborts the run.
func (b *VisibilityBackfill) Run(ctx context.Context) (BackfillSummary, error) {
	log.Info().Msg("Reconciling listing visibility against billing provider...")

	var summary BackfillSummary
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		page, err := b.page(ctx, after)
		if err != nil {
			return summary, err
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Visited++
			switch outcome := b.reconcileOne(ctx, &page[i]); outcome {
			case "reconciled":
				summary.Reconciled++
			case "failed":
				summary.Failed++
			default:
				summary.Skipped++
			}
		}

		after = page[len(page)-1].ID
		if len(page) < b.pageSize {
			break
		}
	}

	log.Info().
		Int("visited", summary.Visited).
		Int("reconciled", summary.Reconciled).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Visibility backfill finished")
	return summary, nil
}

func (b *VisibilityBackfill) page(ctx context.Context, after string) ([]visibility.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeouts.StoreTimeout())
	defer cancel()
	return b.listings.ListBound(ctx, after, b.pageSize)
}

func (b *VisibilityBackfill) reconcileOne(ctx context.Context, listing *visibility.Listing) (outcome string) {
	defer func() { metrics.BackfillRunsTotal.WithLabelValues(outcome).Inc() }()

	logger := log.With().Str("listing_id", listing.ID).Str("subscription_id", listing.SubscriptionID).Logger()

	// No OccurredAt: the provider's current state carries no event time to
	// order by, so the write is unconditional and the listing's stamp from
	// webhook event times is left as is.
	ev := visibility.BillingEvent{
		Type:           visibility.EventSubscriptionUpdated,
		SubscriptionID: listing.SubscriptionID,
		ListingRef:     listing.ID,
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeouts.BillingTimeout())
	sub, err := b.provider.GetSubscription(callCtx, listing.SubscriptionID)
	cancel()
	switch {
	case errors.Is(err, visibility.ErrSubscriptionNotFound):
		ev.Type = visibility.EventSubscriptionDeleted
	case err != nil:
		logger.Error().Err(err).Msg("Backfill could not read subscription")
		return "failed"
	default:
		ev.Status = sub.Status
		ev.CustomerID = sub.CustomerID
	}

	instr, err := b.classifier.Classify(ctx, ev)
	if err != nil {
		if visibility.IsTerminal(err) {
			return "skipped"
		}
		logger.Error().Err(err).Msg("Backfill could not classify subscription state")
		return "failed"
	}

	res, err := b.reconciler.Reconcile(ctx, instr)
	switch {
	case err == nil && (res.Outcome == visibility.OutcomeApplied || res.Outcome == visibility.OutcomeRebound):
		return "reconciled"
	case err == nil:
		return "skipped"
	case visibility.IsTerminal(err):
		logger.Warn().Err(err).Msg("Backfill skipped listing")
		return "skipped"
	default:
		logger.Error().Err(err).Msg("Backfill could not reconcile listing")
		return "failed"
	}
}
