package main

import (
	"testing"

	"github.com/nexusengine/core/pkg/models"
)

func TestParseRiskTierAcceptsKnownTiers(t *testing.T) {
	cases := map[string]models.RiskLevel{
		"read_only":   models.RiskReadOnly,
		"write":       models.RiskWrite,
		"destructive": models.RiskDestructive,
		"shell":       models.RiskShell,
		"":            models.RiskShell,
	}
	for input, want := range cases {
		got, err := parseRiskTier(input)
		if err != nil {
			t.Fatalf("parseRiskTier(%q) error = %v", input, err)
		}
		if got != want {
			t.Fatalf("parseRiskTier(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseRiskTierRejectsUnknown(t *testing.T) {
	if _, err := parseRiskTier("catastrophic"); err == nil {
		t.Fatalf("expected error for unknown risk tier")
	}
}
