package engine

import (
	"errors"
	"sync/atomic"

	"trendbot/internal/md"
)

var (
	ErrQueueFull   = errors.New("engine: command queue full")
	ErrQueueClosed = errors.New("engine: command queue closed")
)

type CommandKind int

const (
	CmdManualBuy CommandKind = iota + 1
	CmdManualSell
	CmdCancelAll
	CmdStatus
	CmdBar
)

func (k CommandKind) String() string {
	switch k {
	case CmdManualBuy:
		return "manual_buy"
	case CmdManualSell:
		return "manual_sell"
	case CmdCancelAll:
		return "cancel_all"
	case CmdStatus:
		return "status"
	case CmdBar:
		return "bar"
	default:
		return "unknown"
	}
}

type Command struct {
	Kind CommandKind
	Bar  md.Bar
}

// Commands is a bounded, non-blocking queue from producer goroutines (console,
// market data stream) into the control loop, which is the only consumer.
type Commands struct {
	ch     chan Command
	closed uint32
}

func NewCommands(capacity int) *Commands {
	if capacity <= 0 {
		capacity = 1
	}
	return &Commands{ch: make(chan Command, capacity)}
}

func (q *Commands) TryPublish(c Command) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting commands. The channel is left open so racing producers never panic.
func (q *Commands) Close() {
	atomic.StoreUint32(&q.closed, 1)
}

// Drain returns everything queued right now without blocking.
func (q *Commands) Drain() []Command {
	var out []Command
	for {
		select {
		case c := <-q.ch:
			out = append(out, c)
		default:
			return out
		}
	}
}
