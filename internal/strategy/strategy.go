package strategy

import (
	"fmt"

	"trendbot/internal/md"
)

// Signal is the desired exposure direction in units: +1 long, -1 short.
type Signal int

const (
	None  Signal = 0
	Long  Signal = 1
	Short Signal = -1
)

func (s Signal) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "NONE"
	}
}

// Strategy inspects completed bars and reports a crossover at index, if any.
type Strategy interface {
	Name() string
	Check(bars []md.Bar, index int) Signal
}

func New(name string, slow int) (Strategy, error) {
	switch name {
	case "", "macd":
		return MACDCross{Slow: slow}, nil
	case "sma":
		return SMACross{Slow: slow}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// cross compares a spread at index-1 and index. Touching zero is not a cross.
func cross(prev, cur float64) Signal {
	if prev < 0 && 0 < cur {
		return Long
	}
	if cur < 0 && 0 < prev {
		return Short
	}
	return None
}

func warm(bars []md.Bar, index, slow int) bool {
	return len(bars) > slow && index > slow && index < len(bars)
}
