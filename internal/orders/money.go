package orders

import "github.com/shopspring/decimal"

// Rand/cent conversion lives here and nowhere else; the reconciler compares
// webhook amounts against RandsToCents of the stored total, so both sides
// must round identically (half up).

func RandsToCents(rands float64) int64 {
	return decimal.NewFromFloat(rands).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func CentsToRands(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}
