package md

import "time"

// Bar is one OHLCV interval plus the indicator values derived from the bars before it.
type Bar struct {
	Start  time.Time
	End    time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	SMAFast    float64
	SMASlow    float64
	EMAFast    float64
	EMASlow    float64
	MACD       float64
	MACDSignal float64
}

type UpdateResult int

const (
	Discarded UpdateResult = iota
	Appended
	Replaced
)

func (r UpdateResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	default:
		return "discarded"
	}
}

// Series is the ordered bar sequence for one instrument. Start times are
// strictly increasing; only the tail may be rewritten while it is still forming.
type Series struct {
	bars  []Bar
	dirty int
}

func NewSeries() *Series {
	return &Series{}
}

// Update appends a newer bar, replaces the tail when the start time matches,
// and drops anything older.
func (s *Series) Update(bar Bar) UpdateResult {
	n := len(s.bars)
	if n == 0 || s.bars[n-1].Start.Before(bar.Start) {
		s.bars = append(s.bars, bar)
		s.markDirty(n)
		return Appended
	}
	if s.bars[n-1].Start.Equal(bar.Start) {
		s.bars[n-1] = bar
		s.markDirty(n - 1)
		return Replaced
	}
	return Discarded
}

// UpdateAll folds rows in order and reports how many were appended and replaced.
func (s *Series) UpdateAll(bars []Bar) (appended, replaced int) {
	for _, bar := range bars {
		switch s.Update(bar) {
		case Appended:
			appended++
		case Replaced:
			replaced++
		}
	}
	return appended, replaced
}

func (s *Series) markDirty(index int) {
	if index < s.dirty {
		s.dirty = index
	}
}

func (s *Series) Len() int {
	return len(s.bars)
}

func (s *Series) At(index int) Bar {
	return s.bars[index]
}

// Last returns the tail bar, if any.
func (s *Series) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Bars exposes the backing slice. Callers outside the control loop must not hold on to it.
func (s *Series) Bars() []Bar {
	return s.bars
}

// Dirty is the lowest index whose row changed since the last ClearDirty.
func (s *Series) Dirty() int {
	return s.dirty
}

func (s *Series) ClearDirty() {
	s.dirty = len(s.bars)
}
