package moe

import "fmt"

// Action is the advisory trading decision.
type Action uint8

const (
	Hold Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Hold:
		return "HOLD"
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// ParseAction accepts the names produced by String.
func ParseAction(s string) (Action, error) {
	switch s {
	case "HOLD":
		return Hold, nil
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	}
	return Hold, fmt.Errorf("unknown action %q", s)
}

// Decision thresholds on the combined expert output.
const (
	BuyThreshold  = 0.1
	SellThreshold = -0.1
)

// TradeSignal is the model's recommendation for one order. Price and Quantity
// are reserved and always zero.
type TradeSignal struct {
	Action     Action
	Confidence float64
	Price      uint32
	Quantity   uint32
}

// Decide turns a combined score into a signal.
func Decide(combined float64) TradeSignal {
	sig := TradeSignal{Action: Hold, Confidence: combined}
	if combined < 0 {
		sig.Confidence = -combined
	}
	switch {
	case combined > BuyThreshold:
		sig.Action = Buy
	case combined < SellThreshold:
		sig.Action = Sell
	}
	return sig
}
