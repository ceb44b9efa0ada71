// Package indicator derives moving averages and MACD on a bar series.
//
// EMAs are seeded at zero rather than at the first close, so early values carry a
// warm-up transient. Signals read only bars past the slow period, where it has decayed.
package indicator

import (
	"fmt"

	"trendbot/internal/md"
)

type Params struct {
	Fast   int
	Slow   int
	Signal int
}

func DefaultParams() Params {
	return Params{Fast: 12, Slow: 26, Signal: 9}
}

func (p Params) Validate() error {
	if p.Fast <= 0 || p.Slow <= 0 || p.Signal <= 0 {
		return fmt.Errorf("indicator periods must be > 0 (fast=%d slow=%d signal=%d)", p.Fast, p.Slow, p.Signal)
	}
	if p.Fast >= p.Slow {
		return fmt.Errorf("fast period %d must be < slow period %d", p.Fast, p.Slow)
	}
	return nil
}

type Engine struct {
	params  Params
	fastK   float64
	slowK   float64
	signalK float64
}

func New(params Params) *Engine {
	return &Engine{
		params:  params,
		fastK:   smoothing(params.Fast),
		slowK:   smoothing(params.Slow),
		signalK: smoothing(params.Signal),
	}
}

func smoothing(period int) float64 {
	return 2 / (float64(period) + 1)
}

func (e *Engine) Params() Params {
	return e.params
}

// Update recomputes derived fields from the series' dirty index to the tail and clears it.
func (e *Engine) Update(series *md.Series) {
	bars := series.Bars()
	from := series.Dirty()
	for i := from; i < len(bars); i++ {
		e.ema(bars, i)
	}
	if len(bars) > e.params.Slow {
		start := from
		if start < e.params.Slow {
			start = e.params.Slow
		}
		for i := start; i < len(bars); i++ {
			e.sma(bars, i)
		}
	}
	series.ClearDirty()
}

func (e *Engine) ema(bars []md.Bar, i int) {
	this := &bars[i]
	if i == 0 {
		this.EMAFast, this.EMASlow, this.MACD, this.MACDSignal = 0, 0, 0, 0
		return
	}
	last := bars[i-1]
	this.EMAFast = (this.Close-last.EMAFast)*e.fastK + last.EMAFast
	this.EMASlow = (this.Close-last.EMASlow)*e.slowK + last.EMASlow
	this.MACD = this.EMAFast - this.EMASlow
	this.MACDSignal = (this.MACD-last.MACDSignal)*e.signalK + last.MACDSignal
}

// sma averages the period bars preceding index i, excluding bar i itself.
func (e *Engine) sma(bars []md.Bar, i int) {
	bars[i].SMAFast = windowMean(bars, i, e.params.Fast)
	bars[i].SMASlow = windowMean(bars, i, e.params.Slow)
}

func windowMean(bars []md.Bar, i, period int) float64 {
	sum := 0.0
	for j := i - period; j < i; j++ {
		sum += bars[j].Close
	}
	return sum / float64(period)
}
