package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"trendbot/internal/order"
)

type canceler interface {
	Cancel(ctx context.Context, id string) error
}

// Reaper cancels working orders that have rested too long.
type Reaper struct {
	staleAfter time.Duration
	store      *order.Store
	cancel     canceler
	log        logrus.FieldLogger
}

func NewReaper(staleAfter time.Duration, store *order.Store, cancel canceler, log logrus.FieldLogger) *Reaper {
	return &Reaper{staleAfter: staleAfter, store: store, cancel: cancel, log: log}
}

// Reap sends cancels for NEW and PARTIALLY_FILLED orders older than the timeout.
// A PENDING_NEW order the venue never reported is dropped only when syncedAt, the time
// of the last successful order sync, is more than the timeout past its creation: the
// venue had the full timeout to list it and a clean sync still did not. A zero syncedAt
// never drops anything. Failed cancels are retried on a later pass.
func (r *Reaper) Reap(ctx context.Context, now, syncedAt time.Time) (canceled, dropped int) {
	for _, o := range r.store.Orders() {
		age := now.Sub(o.CreatedAt)
		if age <= r.staleAfter {
			continue
		}
		log := r.log.WithFields(logrus.Fields{"order_id": o.ID, "age": age.Round(time.Second).String()})
		switch o.Status {
		case order.New, order.PartiallyFilled:
			if err := r.cancel.Cancel(ctx, o.ID); err != nil {
				log.WithError(err).Warn("stale order cancel failed")
				continue
			}
			log.Info("stale order canceled")
			canceled++
		case order.PendingNew:
			if o.Seen || syncedAt.IsZero() || syncedAt.Sub(o.CreatedAt) <= r.staleAfter {
				continue
			}
			if r.store.Remove(o.ID) {
				log.Warn("dropping order never acknowledged by venue")
				dropped++
			}
		}
	}
	return canceled, dropped
}
