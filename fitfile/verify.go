package fitfile

import (
	"bytes"
	"fmt"

	"github.com/tormoder/fit"
)

// Summary is what an independent FIT decoder sees in a rebuilt file.
type Summary struct {
	FileType          string `json:"file_type"`
	Manufacturer      string `json:"manufacturer"`
	Records           int    `json:"records"`
	Laps              int    `json:"laps"`
	Sessions          int    `json:"sessions"`
	TemperatureFields int    `json:"temperature_fields"`
}

// Verify decodes data with github.com/tormoder/fit and requires an activity
// file. It is the round-trip check applied to every rebuilt file before it
// is archived.
func Verify(data []byte) (*Summary, error) {
	decoded, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}

	s := &Summary{
		FileType:     fmt.Sprint(decoded.FileId.Type),
		Manufacturer: fmt.Sprint(decoded.FileId.Manufacturer),
		Records:      len(activity.Records),
		Laps:         len(activity.Laps),
		Sessions:     len(activity.Sessions),
	}
	for _, rec := range activity.Records {
		if rec.Temperature != 0x7F {
			s.TemperatureFields++
		}
	}
	return s, nil
}
