// Package export writes the per-sample telemetry of a rewritten activity as a
// flat table next to its backup.
package export

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lucasjlepore/fitsync/fitfile"
)

// Supported formats.
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// Sample is one record message flattened into a table row.
type Sample struct {
	RecordIndex int      `json:"record_index"`
	TSUTCISO    string   `json:"ts_utc_iso,omitempty"`
	ElapsedS    float64  `json:"elapsed_s"`
	CadenceRPM  *float64 `json:"cadence_rpm,omitempty"`
	PowerW      *float64 `json:"power_w,omitempty"`
	HRBPM       *float64 `json:"hr_bpm,omitempty"`
}

// Samples flattens the record messages in msgs. Elapsed time is measured
// from the first timestamped record.
func Samples(msgs []fitfile.Message) []Sample {
	var (
		out   []Sample
		start time.Time
	)
	for _, msg := range msgs {
		rec, ok := msg.(*fitfile.SampleRecord)
		if !ok {
			continue
		}
		s := Sample{RecordIndex: len(out)}
		if ts, ok := rec.Timestamp(); ok {
			if start.IsZero() {
				start = ts
			}
			s.TSUTCISO = ts.UTC().Format(time.RFC3339)
			s.ElapsedS = ts.Sub(start).Seconds()
		}
		if v, ok := rec.Cadence(); ok {
			s.CadenceRPM = floatPtr(float64(v))
		}
		if v, ok := rec.Power(); ok {
			s.PowerW = floatPtr(float64(v))
		}
		if v, ok := rec.HeartRate(); ok {
			s.HRBPM = floatPtr(float64(v))
		}
		out = append(out, s)
	}
	return out
}

// NormalizeFormat lower-cases format and checks it is supported. The empty
// string means export is disabled and is returned unchanged.
func NormalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "", FormatParquet, FormatCSV:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (expected parquet|csv)", format)
	}
}

// PathFor returns the export path that sits next to a backup file.
func PathFor(backupPath, format string) string {
	return backupPath + ".samples." + format
}

// Write exports the record messages of msgs to path in the given format.
func Write(path, format string, msgs []fitfile.Message) error {
	format, err := NormalizeFormat(format)
	if err != nil {
		return err
	}
	samples := Samples(msgs)
	switch format {
	case FormatParquet:
		if err := writeParquet(path, samples); err != nil {
			return fmt.Errorf("write samples parquet: %w", err)
		}
	case FormatCSV:
		if err := writeCSV(path, samples); err != nil {
			return fmt.Errorf("write samples csv: %w", err)
		}
	default:
		return fmt.Errorf("export format is empty")
	}
	return nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func floatPtr(v float64) *float64 {
	out := v
	return &out
}
