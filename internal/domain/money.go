package domain

import "math"

// RoundToCents rounds a non-negative monetary amount half-up to two decimal
// places. Totals are recomputed and re-rounded after every line mutation.
func RoundToCents(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	return math.Floor(amount*100+0.5) / 100
}

// LineTotal computes the rounded extended price of one order line.
func LineTotal(unitPrice float64, quantity int) float64 {
	if quantity <= 0 {
		return 0
	}
	return RoundToCents(unitPrice * float64(quantity))
}

// OrderTotal computes the rounded sum of extended line prices.
func OrderTotal(lines []OrderLine) float64 {
	sum := 0.0
	for _, line := range lines {
		sum += line.UnitPrice * float64(line.Quantity)
	}
	return RoundToCents(sum)
}
