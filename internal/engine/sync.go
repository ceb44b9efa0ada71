package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"trendbot/internal/order"
)

type Syncer struct {
	account  string
	exchange Exchange
	store    *order.Store
	log      logrus.FieldLogger
}

func NewSyncer(account string, exchange Exchange, store *order.Store, log logrus.FieldLogger) *Syncer {
	return &Syncer{account: account, exchange: exchange, store: store, log: log}
}

// SyncOnce merges the venue's view of every order into the store. On any fetch or
// parse failure the store is left as it was and the cycle is skipped.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	updates, err := s.exchange.Orders(ctx, s.account)
	if err != nil {
		s.log.WithError(err).Warn("order sync skipped")
		return err
	}
	logEvents(s.log, s.store.ApplyBatch(updates))
	return nil
}

func logEvents(log logrus.FieldLogger, events []order.Event) {
	for _, ev := range events {
		entry := log.WithField("order_id", ev.OrderID)
		switch ev.Kind {
		case order.EventIgnored:
			entry.WithField("status", ev.To).Debug("unrecognized order")
		case order.EventRejected:
			entry.WithField("remark", ev.Remark).Warn("order rejected")
		case order.EventStatusChanged:
			entry = entry.WithFields(logrus.Fields{"status_from": ev.From, "status_to": ev.To})
			if !ev.Expected {
				entry.Warn("unexpected order transition")
				continue
			}
			entry.Info("order status changed")
		case order.EventFilled:
			entry.WithFields(logrus.Fields{
				"delta":  ev.Delta.String(),
				"filled": ev.Filled.String(),
			}).Info("order filled")
		}
	}
}
