package venue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"

	"trendbot/internal/order"
)

const DefaultExchangeURL = "http://127.0.0.1:8091/api/v1/"

type Exchange struct {
	http httpClient
}

func NewExchange(client *fasthttp.Client, baseURL string, timeout time.Duration) *Exchange {
	if baseURL == "" {
		baseURL = DefaultExchangeURL
	}
	return &Exchange{http: newHTTPClient(client, baseURL, timeout)}
}

// SendTransaction forwards a signed payload. A *RejectionError means the venue refused it
// and will never know the order; any other error leaves that question open.
func (e *Exchange) SendTransaction(ctx context.Context, payload SignedPayload) error {
	body, code, err := e.http.post(ctx, "transaction", payload.Raw)
	if err != nil {
		return err
	}
	if rej := parseRejection(body); rej != nil {
		return rej
	}
	if code != fasthttp.StatusOK {
		return fmt.Errorf("%w: send transaction: status %d", ErrTransport, code)
	}
	return nil
}

type ordersRequest struct {
	AccountName string `json:"accountName"`
}

// Orders pulls every order the venue holds for account.
func (e *Exchange) Orders(ctx context.Context, account string) ([]order.Update, error) {
	reqBody, err := sonic.ConfigFastest.Marshal(ordersRequest{AccountName: account})
	if err != nil {
		return nil, fmt.Errorf("venue: encode orders request: %w", err)
	}
	body, code, err := e.http.post(ctx, "order", reqBody)
	if err != nil {
		return nil, err
	}
	if code != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: orders: status %d", ErrTransport, code)
	}
	return parseVenueOrders(body)
}

func parseRejection(body []byte) *RejectionError {
	if !gjson.ValidBytes(body) {
		return nil
	}
	status := gjson.GetBytes(body, "status").String()
	if !strings.EqualFold(status, "failed") {
		return nil
	}
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "reason").String()
	}
	return &RejectionError{Message: msg}
}

func parseVenueOrders(body []byte) ([]order.Update, error) {
	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: orders response is not an array", ErrMalformed)
	}
	rows := result.Array()
	updates := make([]order.Update, 0, len(rows))
	for i, row := range rows {
		u, err := parseVenueOrder(row)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func parseVenueOrder(row gjson.Result) (order.Update, error) {
	id := row.Get("transactionId").String()
	if id == "" {
		return order.Update{}, fmt.Errorf("%w: missing transactionId", ErrMalformed)
	}
	filled, err := decimalField(row.Get("filledQuantity"))
	if err != nil {
		return order.Update{}, fmt.Errorf("%w: filledQuantity: %v", ErrMalformed, err)
	}
	avg, err := decimalField(row.Get("averagePrice"))
	if err != nil {
		return order.Update{}, fmt.Errorf("%w: averagePrice: %v", ErrMalformed, err)
	}
	status, err := mapStatus(row.Get("orderStatus").String(), filled)
	if err != nil {
		return order.Update{}, err
	}
	return order.Update{
		ID:       id,
		Status:   status,
		Filled:   filled,
		AvgPrice: avg,
		Sequence: row.Get("orderSequence").Int(),
		Remark:   row.Get("remark").String(),
	}, nil
}

func mapStatus(raw string, filled decimal.Decimal) (order.Status, error) {
	switch raw {
	case "PENDING_NEW":
		return order.PendingNew, nil
	case "OPEN":
		if filled.IsPositive() {
			return order.PartiallyFilled, nil
		}
		return order.New, nil
	case "PENDING_CXL":
		return order.PendingCancel, nil
	case "CANCELED":
		return order.Canceled, nil
	case "FILLED":
		return order.Filled, nil
	case "REJECTED":
		return order.Rejected, nil
	default:
		return "", fmt.Errorf("%w: unknown orderStatus %q", ErrMalformed, raw)
	}
}

func decimalField(r gjson.Result) (decimal.Decimal, error) {
	if !r.Exists() || r.Type == gjson.Null || r.String() == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(r.String())
}
