package settlement

import "github.com/mantraapp1/23-oct-mantra-sub003/internal/models"

// PerEventRate is the run-wide per-event rate: the distributable pool spread
// over every pending event in the system, rounded to the rail asset
// precision. The denominator is the global pending count taken before any
// recipient cap or concurrent claim thins the run, so an event is worth the
// same no matter which recipient or run ends up paying it.
func PerEventRate(pool float64, totalEvents int64) float64 {
	if pool <= 0 || totalEvents <= 0 {
		return 0
	}
	return models.RoundAmount(pool / float64(totalEvents))
}

// RecipientShare is what a recipient earns for eventCount events at rate.
func RecipientShare(rate float64, eventCount int64) float64 {
	if rate <= 0 || eventCount <= 0 {
		return 0
	}
	return models.RoundAmount(rate * float64(eventCount))
}
