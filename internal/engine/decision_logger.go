package engine

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"trendbot/internal/strategy"
)

// Decision is one evaluation of the control loop: a signal check, a manual command,
// or a reconciliation pass.
type Decision struct {
	RunID        string          `json:"run_id"`
	Timestamp    time.Time       `json:"timestamp"`
	BarTime      time.Time       `json:"bar_time"`
	Pair         string          `json:"pair"`
	Close        float64         `json:"close"`
	MACD         float64         `json:"macd"`
	MACDSignal   float64         `json:"macd_signal"`
	Strategy     string          `json:"strategy"`
	Signal       strategy.Signal `json:"signal"`
	Manual       string          `json:"manual,omitempty"`
	Target       decimal.Decimal `json:"target"`
	Pseudo       decimal.Decimal `json:"pseudo_position"`
	ToTrade      decimal.Decimal `json:"to_trade"`
	Cancels      int             `json:"cancels"`
	Result       string          `json:"result"`
	RejectReason string          `json:"reject_reason,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
	Side         string          `json:"side,omitempty"`
	Qty          decimal.Decimal `json:"qty"`
	Price        decimal.Decimal `json:"price"`
}

type DecisionSink interface {
	Append(decision Decision)
}

// MultiSink fans a decision out to every sink in order.
type MultiSink []DecisionSink

func (m MultiSink) Append(decision Decision) {
	for _, s := range m {
		s.Append(decision)
	}
}

type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if decision.RunID == "" {
		decision.RunID = d.runID
	}
	payload, err := sonic.ConfigStd.Marshal(decision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal decision: %v\n", err)
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write decision: %v\n", err)
		return
	}
	if err := d.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush decision log: %v\n", err)
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
