package rating

import (
	"github.com/shopspring/decimal"
)

// ComputeAggregate returns the mean of stars rounded half up to one decimal
// place, and the number of ratings. An empty set yields 0 and 0.
func ComputeAggregate(stars []int) (decimal.Decimal, int) {
	if len(stars) == 0 {
		return decimal.Zero, 0
	}
	var sum int64
	for _, s := range stars {
		sum += int64(s)
	}
	n := int64(len(stars))
	// floor(sum*10/n + 1/2) in integers, then shift one decimal place
	tenths := (20*sum + n) / (2 * n)
	return decimal.New(tenths, -1), len(stars)
}
