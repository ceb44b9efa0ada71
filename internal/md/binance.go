package md

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

const DefaultBinanceURL = "https://api.binance.com"

// BinanceProvider polls the public spot REST endpoints.
type BinanceProvider struct {
	client  *fasthttp.Client
	baseURL string
	symbol  string
	timeout time.Duration
}

func NewBinanceProvider(client *fasthttp.Client, baseURL, symbol string, timeout time.Duration) *BinanceProvider {
	if client == nil {
		client = &fasthttp.Client{}
	}
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	return &BinanceProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		symbol:  strings.ToUpper(symbol),
		timeout: timeout,
	}
}

func (p *BinanceProvider) Bars(ctx context.Context, since time.Time) ([]Bar, error) {
	args := map[string]string{
		"symbol":    p.symbol,
		"interval":  "1m",
		"startTime": strconv.FormatInt(since.UnixMilli(), 10),
		"limit":     "1000",
	}
	body, err := p.get(ctx, "/api/v3/klines", args)
	if err != nil {
		return nil, err
	}
	return parseKlines(body)
}

func (p *BinanceProvider) OrderBook(ctx context.Context, depth int) (OrderBook, error) {
	if depth <= 0 {
		depth = 10
	}
	body, err := p.get(ctx, "/api/v3/depth", map[string]string{
		"symbol": p.symbol,
		"limit":  strconv.Itoa(depth),
	})
	if err != nil {
		return OrderBook{}, err
	}
	return parseDepth(body, time.Now().UTC())
}

func (p *BinanceProvider) get(ctx context.Context, path string, args map[string]string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	queryArgs := req.URI().QueryArgs()
	for k, v := range args {
		queryArgs.Set(k, v)
	}

	if err := p.client.DoTimeout(req, resp, p.timeout); err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrTransport, path, err)
	}
	body := append([]byte(nil), resp.Body()...)
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		msg := gjson.GetBytes(body, "msg").Str
		return nil, fmt.Errorf("%w: GET %s: status %d %s", ErrTransport, path, code, msg)
	}
	return body, nil
}

// parseKlines maps rows of [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlines(body []byte) ([]Bar, error) {
	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: kline response is not an array", ErrMalformed)
	}
	rows := result.Array()
	bars := make([]Bar, 0, len(rows))
	for i, v := range rows {
		row := v.Array()
		if len(row) < 6 {
			return nil, fmt.Errorf("%w: kline row %d has %d fields", ErrMalformed, i, len(row))
		}
		start := time.UnixMilli(row[0].Int()).UTC()
		end := start.Add(time.Minute)
		if len(row) > 6 {
			end = time.UnixMilli(row[6].Int() + 1).UTC()
		}
		bars = append(bars, Bar{
			Start:  start,
			End:    end,
			Open:   row[1].Float(),
			High:   row[2].Float(),
			Low:    row[3].Float(),
			Close:  row[4].Float(),
			Volume: row[5].Float(),
		})
	}
	return bars, nil
}

func parseDepth(body []byte, ts time.Time) (OrderBook, error) {
	if !gjson.ValidBytes(body) {
		return OrderBook{}, fmt.Errorf("%w: depth response is not json", ErrMalformed)
	}
	bids := gjson.GetBytes(body, "bids")
	asks := gjson.GetBytes(body, "asks")
	if !bids.IsArray() || !asks.IsArray() {
		return OrderBook{}, fmt.Errorf("%w: depth response missing bids/asks", ErrMalformed)
	}
	return NewOrderBook(parseLevels(bids), parseLevels(asks), ts), nil
}

func parseLevels(side gjson.Result) []Level {
	rows := side.Array()
	levels := make([]Level, 0, len(rows))
	for _, v := range rows {
		row := v.Array()
		if len(row) < 2 {
			continue
		}
		levels = append(levels, Level{Price: row[0].Float(), Size: row[1].Float()})
	}
	return levels
}
