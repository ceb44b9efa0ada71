package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"

	"trendbot/internal/order"
)

const DefaultSignerURL = "http://127.0.0.1:8090/api/signer"

// SignedPayload is a transaction ready to be forwarded to the exchange.
type SignedPayload struct {
	TransactionID string
	Raw           []byte
}

type Signer struct {
	http httpClient
}

func NewSigner(client *fasthttp.Client, baseURL string, timeout time.Duration) *Signer {
	if baseURL == "" {
		baseURL = DefaultSignerURL
	}
	return &Signer{http: newHTTPClient(client, baseURL, timeout)}
}

type newOrderRequest struct {
	AssetPair string  `json:"assetPair"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Side      string  `json:"side"`
}

type cancelRequest struct {
	TransactionID string `json:"transactionId"`
}

type cancelAllRequest struct {
	AssetPair string `json:"assetPair"`
}

func (s *Signer) PrepareOrder(ctx context.Context, pair string, side order.Side, price, quantity decimal.Decimal) (SignedPayload, error) {
	return s.sign(ctx, "newOrder", newOrderRequest{
		AssetPair: pair,
		Price:     price.InexactFloat64(),
		Quantity:  quantity.InexactFloat64(),
		Side:      string(side),
	})
}

func (s *Signer) PrepareCancel(ctx context.Context, transactionID string) (SignedPayload, error) {
	return s.sign(ctx, "cancelOrder", cancelRequest{TransactionID: transactionID})
}

func (s *Signer) PrepareCancelAll(ctx context.Context, pair string) (SignedPayload, error) {
	return s.sign(ctx, "cancelAll", cancelAllRequest{AssetPair: pair})
}

func (s *Signer) sign(ctx context.Context, path string, payload any) (SignedPayload, error) {
	body, err := sonic.ConfigFastest.Marshal(payload)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("venue: encode %s request: %w", path, err)
	}
	respBody, code, err := s.http.post(ctx, path, body)
	if err != nil {
		return SignedPayload{}, err
	}
	if code != fasthttp.StatusOK {
		return SignedPayload{}, fmt.Errorf("%w: signer %s: status %d", ErrTransport, path, code)
	}
	return parseSignedOrder(respBody)
}

// parseSignedOrder keeps the signer's message verbatim; only the transaction id is read.
func parseSignedOrder(body []byte) (SignedPayload, error) {
	if !gjson.ValidBytes(body) {
		return SignedPayload{}, fmt.Errorf("%w: signer response is not json", ErrMalformed)
	}
	id := gjson.GetBytes(body, "transactionId")
	if id.String() == "" {
		return SignedPayload{}, fmt.Errorf("%w: signer response has no transactionId", ErrMalformed)
	}
	return SignedPayload{TransactionID: id.String(), Raw: body}, nil
}
