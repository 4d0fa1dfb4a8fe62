// Package rewrite strips record temperatures and recomputes session averages
// in a single forward pass over an activity file.
package rewrite

import (
	"errors"
	"fmt"
	"io"

	"github.com/lucasjlepore/fitsync/fitfile"
)

// Stats describes what a rewrite changed.
type Stats struct {
	Records            int     `json:"records"`
	TemperatureRemoved int     `json:"temperature_removed"`
	SessionsUpdated    int     `json:"sessions_updated"`
	AvgCadence         float64 `json:"avg_cadence"`
	AvgPower           float64 `json:"avg_power"`
	AvgHeartRate       float64 `json:"avg_heart_rate"`
}

// Result is the rewritten message sequence ready for fitfile.Build.
type Result struct {
	Header   fitfile.Header
	Messages []fitfile.Message
	Stats    Stats
}

// Rewriter applies the sanitize pass. The zero value is ready to use.
type Rewriter struct{}

// Rewrite decodes r and returns every message in original order with
// temperatures removed from sample records and session averages replaced by
// the means of the samples preceding each session.
func (Rewriter) Rewrite(r io.Reader) (*Result, error) {
	return Rewrite(r)
}

// Rewrite is Rewriter.Rewrite without a receiver.
func Rewrite(r io.Reader) (*Result, error) {
	rd, err := fitfile.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open activity: %w", err)
	}

	res := &Result{Header: rd.Header()}
	acc := &Accumulator{}
	for {
		msg, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read message %d: %w", len(res.Messages), err)
		}

		switch m := msg.(type) {
		case *fitfile.SampleRecord:
			res.Stats.Records++
			if m.RemoveTemperature() {
				res.Stats.TemperatureRemoved++
			}
			acc.AddRecord(m)
		case *fitfile.SessionSummary:
			cad, pwr, hr := acc.Averages()
			m.SetAverages(cad, pwr, hr)
			res.Stats.SessionsUpdated++
			res.Stats.AvgCadence, res.Stats.AvgPower, res.Stats.AvgHeartRate = cad, pwr, hr
		}
		res.Messages = append(res.Messages, msg)
	}
	return res, nil
}
