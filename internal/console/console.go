// Package console turns operator keystrokes into control loop commands.
package console

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"trendbot/internal/engine"
)

// Publisher is the enqueue side of the control loop's command queue.
type Publisher interface {
	TryPublish(c engine.Command) error
}

var keys = map[rune]engine.CommandKind{
	'+': engine.CmdManualBuy,
	'-': engine.CmdManualSell,
	'x': engine.CmdCancelAll,
	'X': engine.CmdCancelAll,
	'?': engine.CmdStatus,
}

// Run reads r until EOF or ctx is done. A read blocked on a terminal cannot be
// interrupted, so reading happens on its own goroutine and Run returns on ctx alone.
func Run(ctx context.Context, r io.Reader, q Publisher, log logrus.FieldLogger) error {
	runes := make(chan rune)
	readErr := make(chan error, 1)
	go func() {
		br := bufio.NewReader(r)
		for {
			ch, _, err := br.ReadRune()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case runes <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				log.Info("console input closed")
				return nil
			}
			return err
		case ch := <-runes:
			kind, ok := keys[ch]
			if !ok {
				continue
			}
			entry := log.WithField("command", kind.String())
			if err := q.TryPublish(engine.Command{Kind: kind}); err != nil {
				entry.WithError(err).Warn("command dropped")
				continue
			}
			entry.Info("command queued")
		}
	}
}
