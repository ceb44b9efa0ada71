package md

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTransport = errors.New("md: transport failure")
	ErrMalformed = errors.New("md: malformed response")
)

// Provider is a source of one-minute bars and order book snapshots for a single instrument.
type Provider interface {
	Bars(ctx context.Context, since time.Time) ([]Bar, error)
	OrderBook(ctx context.Context, depth int) (OrderBook, error)
}
