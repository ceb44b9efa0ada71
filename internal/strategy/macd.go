package strategy

import "trendbot/internal/md"

// MACDCross goes long when MACD crosses above its signal line and short when it crosses below.
type MACDCross struct {
	Slow int
}

func (MACDCross) Name() string { return "macd" }

func (s MACDCross) Check(bars []md.Bar, index int) Signal {
	if !warm(bars, index, s.Slow) {
		return None
	}
	prev := bars[index-1].MACD - bars[index-1].MACDSignal
	cur := bars[index].MACD - bars[index].MACDSignal
	return cross(prev, cur)
}
