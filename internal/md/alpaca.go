package md

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

type cryptoClient interface {
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
	GetLatestCryptoQuote(symbol string, req marketdata.GetLatestCryptoQuoteRequest) (*marketdata.CryptoQuote, error)
}

// AlpacaProvider reads crypto bars and the latest top-of-book quote from the alpaca data API.
// The book it returns has at most one level per side.
type AlpacaProvider struct {
	client cryptoClient
	symbol string
}

func NewAlpacaProvider(apiKey, apiSecret, symbol string, timeout time.Duration) *AlpacaProvider {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: timeout},
	})
	return &AlpacaProvider{client: client, symbol: symbol}
}

func (p *AlpacaProvider) Bars(ctx context.Context, since time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := p.client.GetCryptoBars(p.symbol, marketdata.GetCryptoBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     since,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get crypto bars: %v", ErrTransport, err)
	}
	return fromAlpacaBars(bars), nil
}

// OrderBook ignores depth beyond the top level.
func (p *AlpacaProvider) OrderBook(ctx context.Context, depth int) (OrderBook, error) {
	if err := ctx.Err(); err != nil {
		return OrderBook{}, err
	}
	quote, err := p.client.GetLatestCryptoQuote(p.symbol, marketdata.GetLatestCryptoQuoteRequest{})
	if err != nil {
		return OrderBook{}, fmt.Errorf("%w: get crypto quote: %v", ErrTransport, err)
	}
	if quote == nil {
		return OrderBook{}, fmt.Errorf("%w: no quote for %s", ErrMalformed, p.symbol)
	}
	return fromAlpacaQuote(*quote), nil
}

func fromAlpacaBars(bars []marketdata.CryptoBar) []Bar {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		start := b.Timestamp.UTC()
		out = append(out, Bar{
			Start:  start,
			End:    start.Add(time.Minute),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return out
}

// fromAlpacaQuote leaves a side empty when its price is not positive.
func fromAlpacaQuote(q marketdata.CryptoQuote) OrderBook {
	var bids, asks []Level
	if q.BidPrice > 0 {
		bids = append(bids, Level{Price: q.BidPrice, Size: q.BidSize})
	}
	if q.AskPrice > 0 {
		asks = append(asks, Level{Price: q.AskPrice, Size: q.AskSize})
	}
	return NewOrderBook(bids, asks, q.Timestamp)
}
