package order

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type Status string

const (
	PendingNew      Status = "PENDING_NEW"
	New             Status = "NEW"
	PartiallyFilled Status = "PARTIALLY_FILLED"
	PendingCancel   Status = "PENDING_CANCEL"
	Filled          Status = "FILLED"
	Canceled        Status = "CANCELED"
	Rejected        Status = "REJECTED"
)

var transitions = map[Status][]Status{
	PendingNew:      {New, Rejected, PendingCancel},
	New:             {PartiallyFilled, Filled, Canceled, PendingCancel},
	PartiallyFilled: {PartiallyFilled, Filled, PendingCancel, Canceled},
	PendingCancel:   {Canceled, Filled, PartiallyFilled},
}

// CanTransition reports whether from -> to is part of the expected lifecycle.
// A status that does not change is always expected.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == Filled || s == Canceled || s == Rejected
}

// IsOpen reports whether the order still counts toward open exposure. PendingCancel is
// excluded: sizing assumes requested cancels go through.
func (s Status) IsOpen() bool {
	return s == PendingNew || s == New || s == PartiallyFilled
}

// IsCancelable reports whether a cancel request makes sense for the order.
func (s Status) IsCancelable() bool {
	return s.IsOpen()
}
