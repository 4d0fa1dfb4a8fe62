// Package fittest builds small activity files for tests.
package fittest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucasjlepore/fitsync/fitfile"
)

// Sample describes one record message. Nil values are left out of the layout.
type Sample struct {
	Time        time.Time
	Cadence     *uint8
	Power       *uint16
	HeartRate   *uint8
	Temperature *int8
}

// Start is the default activity start time of fixtures.
var Start = time.Date(2026, 2, 26, 23, 0, 0, 0, time.UTC)

func U8(v uint8) *uint8    { return &v }
func U16(v uint16) *uint16 { return &v }
func I8(v int8) *int8      { return &v }

// FileID returns an activity file_id message.
func FileID(created time.Time) fitfile.Message {
	m := fitfile.NewMesg(fitfile.MesgNumFileID, 0)
	m.SetUint(0, fitfile.BaseEnum, 4) // type: activity
	m.SetUint(1, fitfile.BaseUint16, 255)
	m.SetUint(2, fitfile.BaseUint16, 1)
	m.SetUint(4, fitfile.BaseUint32, uint64(fitfile.TimestampFromTime(created)))
	return fitfile.NewMessage(m)
}

// Record returns a record message with the sample's fields.
func Record(s Sample) fitfile.Message {
	m := fitfile.NewMesg(fitfile.MesgNumRecord, 1)
	m.SetUint(fitfile.FieldTimestamp, fitfile.BaseUint32, uint64(fitfile.TimestampFromTime(s.Time)))
	if s.HeartRate != nil {
		m.SetUint(fitfile.RecordHeartRate, fitfile.BaseUint8, uint64(*s.HeartRate))
	}
	if s.Cadence != nil {
		m.SetUint(fitfile.RecordCadence, fitfile.BaseUint8, uint64(*s.Cadence))
	}
	if s.Power != nil {
		m.SetUint(fitfile.RecordPower, fitfile.BaseUint16, uint64(*s.Power))
	}
	if s.Temperature != nil {
		m.SetInt(fitfile.RecordTemperature, fitfile.BaseSint8, int64(*s.Temperature))
	}
	return fitfile.NewMessage(m)
}

// Lap returns a lap message covering [start, end].
func Lap(start, end time.Time) fitfile.Message {
	m := fitfile.NewMesg(fitfile.MesgNumLap, 2)
	m.SetUint(fitfile.FieldTimestamp, fitfile.BaseUint32, uint64(fitfile.TimestampFromTime(end)))
	m.SetUint(2, fitfile.BaseUint32, uint64(fitfile.TimestampFromTime(start)))
	m.SetUint(7, fitfile.BaseUint32, uint64(end.Sub(start)/time.Millisecond))
	return fitfile.NewMessage(m)
}

// Session returns a virtual cycling session without average fields.
func Session(start, end time.Time) fitfile.Message {
	m := fitfile.NewMesg(fitfile.MesgNumSession, 3)
	m.SetUint(fitfile.FieldTimestamp, fitfile.BaseUint32, uint64(fitfile.TimestampFromTime(end)))
	m.SetUint(2, fitfile.BaseUint32, uint64(fitfile.TimestampFromTime(start)))
	m.SetUint(5, fitfile.BaseEnum, 2)  // sport: cycling
	m.SetUint(6, fitfile.BaseEnum, 58) // sub_sport: virtual_activity
	m.SetUint(7, fitfile.BaseUint32, uint64(end.Sub(start)/time.Millisecond))
	m.SetUint(8, fitfile.BaseUint32, uint64(end.Sub(start)/time.Millisecond))
	return fitfile.NewMessage(m)
}

// Activity returns the closing activity message.
func Activity(end time.Time) fitfile.Message {
	m := fitfile.NewMesg(34, 4)
	m.SetUint(fitfile.FieldTimestamp, fitfile.BaseUint32, uint64(fitfile.TimestampFromTime(end)))
	m.SetUint(1, fitfile.BaseUint16, 1)
	m.SetUint(2, fitfile.BaseEnum, 0)
	m.SetUint(3, fitfile.BaseEnum, 26)
	m.SetUint(4, fitfile.BaseEnum, 1)
	return fitfile.NewMessage(m)
}

// Messages returns file_id, one record per sample, a lap, a session and an
// activity message, in the order an exporting device writes them.
func Messages(samples []Sample) []fitfile.Message {
	end := Start
	if len(samples) > 0 {
		end = samples[len(samples)-1].Time
	}
	msgs := []fitfile.Message{FileID(Start)}
	for _, s := range samples {
		msgs = append(msgs, Record(s))
	}
	return append(msgs, Lap(Start, end), Session(Start, end), Activity(end))
}

// Build encodes msgs with the default header.
func Build(t testing.TB, msgs []fitfile.Message) []byte {
	t.Helper()
	data, err := fitfile.Build(fitfile.DefaultHeader(), msgs)
	if err != nil {
		t.Fatalf("build fit fixture: %v", err)
	}
	return data
}

// WriteFile writes an encoded fixture to dir/name and returns its path.
func WriteFile(t testing.TB, dir, name string, msgs []fitfile.Message) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(t, msgs), 0o644); err != nil {
		t.Fatalf("write fit fixture: %v", err)
	}
	return path
}

// TwoSamples is the reference ride: two records with temperature, cadence
// 90/95, power 200/210 and heart rate 150/155.
func TwoSamples() []Sample {
	return []Sample{
		{Time: Start.Add(1 * time.Second), Cadence: U8(90), Power: U16(200), HeartRate: U8(150), Temperature: I8(24)},
		{Time: Start.Add(2 * time.Second), Cadence: U8(95), Power: U16(210), HeartRate: U8(155), Temperature: I8(25)},
	}
}
