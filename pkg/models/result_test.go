package models

import (
	"encoding/json"
	"testing"
)

func TestCanonicalJSON_SortsKeys(t *testing.T) {
	payload := map[string]interface{}{
		"zeta":  1.0,
		"alpha": "x",
		"mid": map[string]interface{}{
			"b": true,
			"a": []interface{}{"one", 2.0},
		},
	}

	data, err := CanonicalJSON(payload)
	if err != nil {
		t.Fatalf("CanonicalJSON failed: %v", err)
	}

	expected := `{"alpha":"x","mid":{"a":["one",2],"b":true},"zeta":1}`
	if string(data) != expected {
		t.Errorf("Expected %s, got %s", expected, string(data))
	}
}

func TestResultHash_Deterministic(t *testing.T) {
	payload := map[string]interface{}{
		"prediction": []interface{}{1.12, 1.13, 1.15},
		"symbol":     "EURUSD",
		"model":      "lstm-small",
	}

	h1, err := ResultHash(payload)
	if err != nil {
		t.Fatalf("ResultHash failed: %v", err)
	}
	h2, err := ResultHash(payload)
	if err != nil {
		t.Fatalf("ResultHash failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("Hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(h1))
	}
}

func TestResultHash_RoundTripThroughJSON(t *testing.T) {
	payload := map[string]interface{}{
		"prediction": []interface{}{1.0801, 1.0795},
		"horizon":    12.0,
		"meta":       map[string]interface{}{"source": "premium", "bars": 500.0},
	}

	original, err := ResultHash(payload)
	if err != nil {
		t.Fatalf("ResultHash failed: %v", err)
	}

	// Simulate store round-trip: marshal, unmarshal, rehash
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var restored map[string]interface{}
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	rehashed, err := ResultHash(restored)
	if err != nil {
		t.Fatalf("ResultHash failed: %v", err)
	}
	if rehashed != original {
		t.Errorf("Hash changed across store round-trip: %s vs %s", rehashed, original)
	}
}

func TestJobCopy_Isolated(t *testing.T) {
	job := &Job{
		ID:      "j1",
		OwnerID: "alice",
		Status:  JobStatusProcessing,
		Claim:   &Claim{ClaimantID: "eval-1"},
		ReleaseHistory: []ReleaseRecord{
			{ReleasedBy: "eval-0", Reason: "technical_issue"},
		},
		Result: map[string]interface{}{"v": 1.0},
	}

	c := job.Copy()
	c.Claim.ClaimantID = "eval-2"
	c.ReleaseHistory[0].Reason = "mutated"
	c.Result["v"] = 2.0

	if job.Claim.ClaimantID != "eval-1" {
		t.Error("Copy shares claim with original")
	}
	if job.ReleaseHistory[0].Reason != "technical_issue" {
		t.Error("Copy shares release history with original")
	}
	if job.Result["v"] != 1.0 {
		t.Error("Copy shares result map with original")
	}
}
