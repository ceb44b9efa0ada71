package md

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const DefaultBinanceStreamURL = "wss://stream.binance.com:9443/ws"

type BarHandler func(Bar)

// StreamKlines pushes every 1m kline update for symbol into handler until ctx is done,
// redialing a second after each disconnect. The forming bar arrives many times with the
// same start, so the consumer must fold it with Series.Update.
func StreamKlines(ctx context.Context, baseURL, symbol string, handler BarHandler, log logrus.FieldLogger) error {
	if baseURL == "" {
		baseURL = DefaultBinanceStreamURL
	}
	wsURL := fmt.Sprintf("%s/%s@kline_1m", strings.TrimRight(baseURL, "/"), strings.ToLower(symbol))
	log = log.WithField("url", wsURL)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			log.WithError(err).Warn("kline stream dial failed")
		} else {
			log.Info("kline stream connected")
			readKlines(ctx, conn, handler, log)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		log.Info("kline stream reconnecting")
	}
}

func readKlines(ctx context.Context, conn *websocket.Conn, handler BarHandler, log logrus.FieldLogger) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("kline stream read failed")
			}
			return
		}
		bar, ok := parseKlineEvent(message)
		if !ok {
			continue
		}
		handler(bar)
	}
}

func parseKlineEvent(message []byte) (Bar, bool) {
	k := gjson.GetBytes(message, "k")
	if !k.Exists() {
		return Bar{}, false
	}
	return Bar{
		Start:  time.UnixMilli(k.Get("t").Int()).UTC(),
		End:    time.UnixMilli(k.Get("T").Int() + 1).UTC(),
		Open:   k.Get("o").Float(),
		High:   k.Get("h").Float(),
		Low:    k.Get("l").Float(),
		Close:  k.Get("c").Float(),
		Volume: k.Get("v").Float(),
	}, true
}
