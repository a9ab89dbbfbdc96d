package pipeline

import "testing"

func TestPhaseEnabledFindsMember(t *testing.T) {
	if !phaseEnabled([]Phase{PhaseAnalysis, PhaseCleaning}, PhaseAnalysis) {
		t.Fatal("expected PhaseAnalysis reported enabled")
	}
	if phaseEnabled([]Phase{PhaseAnalysis}, PhaseCleaning) {
		t.Fatal("expected PhaseCleaning reported disabled")
	}
}

func TestAllPhasesFixedOrder(t *testing.T) {
	want := []Phase{
		PhasePreAnalysis, PhaseAnalysis, PhaseClassification,
		PhaseValidation, PhaseVerification, PhaseFortification, PhaseCleaning,
	}
	if len(allPhases) != len(want) {
		t.Fatalf("expected %d phases, got %d", len(want), len(allPhases))
	}
	for i, p := range want {
		if allPhases[i] != p {
			t.Fatalf("expected phase %d to be %q, got %q", i, p, allPhases[i])
		}
	}
}
