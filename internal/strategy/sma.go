package strategy

import "trendbot/internal/md"

// SMACross uses the fast/slow simple moving averages instead of MACD.
type SMACross struct {
	Slow int
}

func (SMACross) Name() string { return "sma" }

func (s SMACross) Check(bars []md.Bar, index int) Signal {
	if !warm(bars, index, s.Slow) {
		return None
	}
	prev := bars[index-1].SMAFast - bars[index-1].SMASlow
	cur := bars[index].SMAFast - bars[index].SMASlow
	return cross(prev, cur)
}
