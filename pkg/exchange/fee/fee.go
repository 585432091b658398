// Package fee computes the fill fee charged by the exchange.
package fee

import "math/big"

// Engine computes fees at a fixed percentage. The percentage is set at
// exchange construction and never changes afterwards.
type Engine struct {
	percent *big.Int
}

// NewEngine creates a fee engine charging percent% per fill.
// Percent must be a non-negative integer.
func NewEngine(percent uint64) *Engine {
	return &Engine{percent: new(big.Int).SetUint64(percent)}
}

// Percent returns the configured fee percentage.
func (e *Engine) Percent() uint64 {
	return e.percent.Uint64()
}

// Fee returns floor(amount * percent / 100).
// The fee is computed on the amount the filler pays in, never on the
// amount the order creator offered.
func (e *Engine) Fee(amount *big.Int) *big.Int {
	f := new(big.Int).Mul(amount, e.percent)
	return f.Div(f, big.NewInt(100))
}
