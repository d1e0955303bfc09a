package models

import (
	"math"
	"strconv"
)

// amountScale is 10^7: the rail settles amounts at 7 decimal places, so every
// amount is rounded to that precision before it is written anywhere.
const amountScale = 1e7

// RoundAmount rounds v to the rail asset precision.
func RoundAmount(v float64) float64 {
	return math.Round(v*amountScale) / amountScale
}

// FormatAmount renders an amount without trailing zeros, for notifications
// and log fields.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(RoundAmount(v), 'f', -1, 64)
}
