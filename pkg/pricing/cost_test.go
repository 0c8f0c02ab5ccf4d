package pricing

import (
	"testing"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

func TestEstimate_BaseRates(t *testing.T) {
	m := DefaultModel()

	cases := []struct {
		category string
		expected float64
	}{
		{"short_term", 6.00},
		{"long_term", 12.00},
		{"custom", 18.00},
		{"", 6.00},        // unknown falls back to short_term
		{"unknown", 6.00},
	}

	for _, tc := range cases {
		got := m.Estimate(models.JobRequest{Category: tc.category, Priority: 5})
		if got != tc.expected {
			t.Errorf("Estimate(category=%q) = %.2f, expected %.2f", tc.category, got, tc.expected)
		}
	}
}

func TestEstimate_HighPrioritySurchargeOnly(t *testing.T) {
	m := DefaultModel()

	// long_term at priority 8: 12.00 * 1.25 = 15.00, no other thresholds crossed
	got := m.Estimate(models.JobRequest{Category: "long_term", Priority: 8})
	if got != 15.00 {
		t.Errorf("Expected 15.00, got %.2f", got)
	}
}

func TestEstimate_SurchargesCompoundAdditively(t *testing.T) {
	m := DefaultModel()

	req := models.JobRequest{
		Category:   "short_term",
		Horizon:    60,        // +0.20
		Lookback:   1000,      // +0.10
		DataSource: "premium", // +0.30
		ModelClass: "heavy",   // +0.50
		Priority:   9,         // +0.25
	}

	// 6.00 * (1 + 1.35) = 14.10
	got := m.Estimate(req)
	if got != 14.10 {
		t.Errorf("Expected 14.10, got %.2f", got)
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	m := DefaultModel()
	req := models.JobRequest{Category: "custom", Horizon: 48, Priority: 3}

	first := m.Estimate(req)
	for i := 0; i < 100; i++ {
		if got := m.Estimate(req); got != first {
			t.Fatalf("Estimate not deterministic: %.2f vs %.2f on call %d", got, first, i)
		}
	}
}

func TestPayment_Bonuses(t *testing.T) {
	m := DefaultModel()
	lease := 30 * time.Minute

	// Instant finish, perfect quality: +10% speed, +10% quality
	got := m.Payment(10.00, 0, lease, 1.0)
	if got != 12.00 {
		t.Errorf("Expected 12.00, got %.2f", got)
	}

	// Full lease used, baseline quality: no bonuses
	got = m.Payment(10.00, lease, lease, 0.8)
	if got != 10.00 {
		t.Errorf("Expected 10.00, got %.2f", got)
	}

	// Overdue submit window and poor quality never reduce below estimate
	got = m.Payment(10.00, 2*lease, lease, 0.1)
	if got != 10.00 {
		t.Errorf("Bonuses should floor at 0, expected 10.00, got %.2f", got)
	}

	// Half the lease used, quality 0.9: +5% speed, +5% quality
	got = m.Payment(10.00, 15*time.Minute, lease, 0.9)
	if got != 11.00 {
		t.Errorf("Expected 11.00, got %.2f", got)
	}
}

func TestClampQuality(t *testing.T) {
	if q := ClampQuality(nil); q != 0.8 {
		t.Errorf("Absent quality should default to 0.8, got %.2f", q)
	}

	low := -0.5
	if q := ClampQuality(&low); q != 0 {
		t.Errorf("Expected clamp to 0, got %.2f", q)
	}

	high := 1.7
	if q := ClampQuality(&high); q != 1 {
		t.Errorf("Expected clamp to 1, got %.2f", q)
	}

	mid := 0.65
	if q := ClampQuality(&mid); q != 0.65 {
		t.Errorf("Expected 0.65, got %.2f", q)
	}
}
