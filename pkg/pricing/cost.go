// Package pricing computes job cost estimates and completion payments.
// Everything here is pure: same input, same output, no side effects.
package pricing

import (
	"math"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

// Default base rates by request category
const (
	BaseRateShortTerm = 6.00
	BaseRateLongTerm  = 12.00
	BaseRateCustom    = 18.00
)

// Surcharge thresholds and rates. Surcharges compound additively into a
// single multiplier applied to the base rate.
const (
	HorizonSurchargeAbove  = 30  // prediction steps
	LookbackSurchargeAbove = 365 // history bars
	HighPriorityAt         = 8

	HorizonSurcharge      = 0.20
	LookbackSurcharge     = 0.10
	PremiumDataSurcharge  = 0.30
	HeavyModelSurcharge   = 0.50
	HighPrioritySurcharge = 0.25
)

// Bonus caps applied at completion time
const (
	MaxSpeedBonus   = 0.10
	MaxQualityBonus = 0.10
	QualityBaseline = 0.80
	DefaultQuality  = 0.80
)

// Model estimates costs from configurable base rates. The zero value is not
// usable; construct with DefaultModel or from config.
type Model struct {
	baseRates map[string]float64
}

// DefaultModel returns a cost model with the standard rate table
func DefaultModel() *Model {
	return NewModel(map[string]float64{
		"short_term": BaseRateShortTerm,
		"long_term":  BaseRateLongTerm,
		"custom":     BaseRateCustom,
	})
}

// NewModel builds a cost model from a category → base rate table
func NewModel(baseRates map[string]float64) *Model {
	rates := make(map[string]float64, len(baseRates))
	for k, v := range baseRates {
		rates[k] = v
	}
	return &Model{baseRates: rates}
}

// Estimate computes the estimated cost for a job request, rounded to two
// decimal places. Deterministic and idempotent.
func (m *Model) Estimate(req models.JobRequest) float64 {
	base, ok := m.baseRates[req.Category]
	if !ok {
		base = m.baseRates["short_term"]
	}

	multiplier := 1.0
	if req.Horizon > HorizonSurchargeAbove {
		multiplier += HorizonSurcharge
	}
	if req.Lookback > LookbackSurchargeAbove {
		multiplier += LookbackSurcharge
	}
	if req.DataSource == "premium" {
		multiplier += PremiumDataSurcharge
	}
	if req.ModelClass == "heavy" {
		multiplier += HeavyModelSurcharge
	}
	if req.Priority >= HighPriorityAt {
		multiplier += HighPrioritySurcharge
	}

	return round2(base * multiplier)
}

// Payment computes the final payment for a completed job: the estimate
// adjusted by a speed bonus and a quality bonus, both additive, both
// floored at zero.
func (m *Model) Payment(estimate float64, leaseUsed, leaseDuration time.Duration, quality float64) float64 {
	speed := 0.0
	if leaseDuration > 0 {
		frac := float64(leaseUsed) / float64(leaseDuration)
		speed = MaxSpeedBonus * (1 - frac)
	}
	if speed < 0 {
		speed = 0
	}
	if speed > MaxSpeedBonus {
		speed = MaxSpeedBonus
	}

	qualityBonus := MaxQualityBonus * (quality - QualityBaseline) / (1 - QualityBaseline)
	if qualityBonus < 0 {
		qualityBonus = 0
	}
	if qualityBonus > MaxQualityBonus {
		qualityBonus = MaxQualityBonus
	}

	return round2(estimate * (1 + speed + qualityBonus))
}

// ClampQuality normalizes a caller-supplied quality score to [0,1],
// defaulting when absent.
func ClampQuality(score *float64) float64 {
	if score == nil {
		return DefaultQuality
	}
	q := *score
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
