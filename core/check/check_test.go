package check_test

import (
	"math"

	"testing"

	"go.uber.org/zap"

	"example.com/ntp-check/core/check"
	"example.com/ntp-check/core/sampler"
)

func TestBestServerTieBreakOnDelay(t *testing.T) {
	results := []sampler.PeerResult{
		{Addr: "a", Stratum: 1, Dispersion: 1, Delay: 5},
		{Addr: "b", Stratum: 1, Dispersion: 1, Delay: 3},
		{Addr: "c", Stratum: 0, Dispersion: 0, Delay: 0},
	}

	got := check.BestServer(zap.NewNop(), results)
	if got != 1 {
		t.Errorf("BestServer = %d, want 1 (lower delay wins the tie, stratum 0 rejected)", got)
	}
}

func TestBestServerRejectsLeapAlarm(t *testing.T) {
	results := []sampler.PeerResult{
		{Addr: "a", Stratum: 1, Dispersion: 0, Delay: 1, Flags: 0b1100_0000},
		{Addr: "b", Stratum: 3, Dispersion: 2, Delay: 9},
	}

	got := check.BestServer(zap.NewNop(), results)
	if got != 1 {
		t.Errorf("BestServer = %d, want 1 (alarm peer rejected)", got)
	}
}

func TestBestServerAllRejected(t *testing.T) {
	tests := [][]sampler.PeerResult{
		nil,
		{{Addr: "a", Stratum: 0}, {Addr: "b", Stratum: 0}},
		{
			{Addr: "a", Stratum: 2, Flags: 0b1100_0000},
			{Addr: "b", Stratum: 2, Flags: 0b1100_0000},
		},
	}

	for _, results := range tests {
		got := check.BestServer(zap.NewNop(), results)
		if got != -1 {
			t.Errorf("BestServer(%v) = %d, want -1", results, got)
		}
	}
}

func TestBestServerWorseStratumNeverReplaces(t *testing.T) {
	results := []sampler.PeerResult{
		{Addr: "a", Stratum: 1, Dispersion: 1, Delay: 5},
		{Addr: "b", Stratum: 2, Dispersion: 0.1, Delay: 0.1},
	}

	got := check.BestServer(zap.NewNop(), results)
	if got != 0 {
		t.Errorf("BestServer = %d, want 0 (worse stratum never replaces the best)", got)
	}
}

func TestBestServerWorseDispersionNeverReplaces(t *testing.T) {
	results := []sampler.PeerResult{
		{Addr: "a", Stratum: 2, Dispersion: 1, Delay: 5},
		{Addr: "b", Stratum: 2, Dispersion: 2, Delay: 0.1},
	}

	got := check.BestServer(zap.NewNop(), results)
	if got != 0 {
		t.Errorf("BestServer = %d, want 0 (worse dispersion never replaces the best)", got)
	}
}

func TestAverageOffset(t *testing.T) {
	r := sampler.PeerResult{Offsets: []float64{0.25, 0.25, 0.25, 0.25}}
	got := check.AverageOffset(r)
	if math.Abs(got-0.25) > 1e-9 {
		t.Errorf("AverageOffset = %v, want 0.25", got)
	}
}

func TestEvaluateOffset(t *testing.T) {
	warning, err := check.ParseRange("0.2")
	if err != nil {
		t.Fatalf("ParseRange failed: %v", err)
	}
	critical, err := check.ParseRange("1")
	if err != nil {
		t.Fatalf("ParseRange failed: %v", err)
	}

	tests := []struct {
		offset float64
		want   check.Status
	}{
		{0, check.StatusOK},
		{0.1, check.StatusOK},
		{-0.1, check.StatusOK},
		{0.25, check.StatusWarning},
		{-0.25, check.StatusWarning},
		{1.5, check.StatusCritical},
		{-1.5, check.StatusCritical},
	}

	for _, tt := range tests {
		got := check.EvaluateOffset(tt.offset, warning, critical)
		if got != tt.want {
			t.Errorf("EvaluateOffset(%v) = %v, want %v", tt.offset, got, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status check.Status
		str    string
		code   int
	}{
		{check.StatusOK, "OK", 0},
		{check.StatusWarning, "WARNING", 1},
		{check.StatusCritical, "CRITICAL", 2},
		{check.StatusUnknown, "UNKNOWN", 3},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.str {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.str)
		}
		if got := tt.status.ExitCode(); got != tt.code {
			t.Errorf("Status(%d).ExitCode() = %d, want %d", tt.status, got, tt.code)
		}
	}
}
