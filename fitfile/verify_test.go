package fitfile_test

import (
	"testing"

	"github.com/lucasjlepore/fitsync/fitfile"
	"github.com/lucasjlepore/fitsync/internal/fittest"
)

func TestVerifyAcceptsBuiltActivity(t *testing.T) {
	data := fittest.Build(t, fittest.Messages(fittest.TwoSamples()))

	summary, err := fitfile.Verify(data)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if summary.Records != 2 {
		t.Fatalf("records = %d, want 2", summary.Records)
	}
	if summary.Sessions != 1 {
		t.Fatalf("sessions = %d, want 1", summary.Sessions)
	}
	if summary.TemperatureFields != 2 {
		t.Fatalf("temperature fields = %d, want 2", summary.TemperatureFields)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	if _, err := fitfile.Verify([]byte{0x0E, 0x20}); err == nil {
		t.Fatal("expected error for truncated input")
	}
}
