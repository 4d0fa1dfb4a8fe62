package fitfile

import "math"

// Message is one data message of an activity file. The concrete type is one
// of *SampleRecord, *Lap, *SessionSummary or *Other.
type Message interface {
	Raw() *Mesg
}

// SampleRecord is a per-timestamp telemetry message (global 20).
type SampleRecord struct{ Mesg }

// Lap is a lap summary message (global 19). It passes through untouched.
type Lap struct{ Mesg }

// SessionSummary is the whole-activity aggregate message (global 18).
type SessionSummary struct{ Mesg }

// Other is any message kind the pipeline does not interpret.
type Other struct{ Mesg }

// Raw returns the underlying message.
func (r *SampleRecord) Raw() *Mesg { return &r.Mesg }

// Raw returns the underlying message.
func (l *Lap) Raw() *Mesg { return &l.Mesg }

// Raw returns the underlying message.
func (s *SessionSummary) Raw() *Mesg { return &s.Mesg }

// Raw returns the underlying message.
func (o *Other) Raw() *Mesg { return &o.Mesg }

// NewMessage wraps a raw message in the variant matching its global number.
func NewMessage(m Mesg) Message {
	switch m.Global {
	case MesgNumRecord:
		return &SampleRecord{Mesg: m}
	case MesgNumLap:
		return &Lap{Mesg: m}
	case MesgNumSession:
		return &SessionSummary{Mesg: m}
	default:
		return &Other{Mesg: m}
	}
}

// Cadence returns the record cadence in rpm.
func (r *SampleRecord) Cadence() (uint8, bool) {
	v, ok := r.Uint(RecordCadence)
	return uint8(v), ok
}

// Power returns the record power in watts.
func (r *SampleRecord) Power() (uint16, bool) {
	v, ok := r.Uint(RecordPower)
	return uint16(v), ok
}

// HeartRate returns the record heart rate in bpm.
func (r *SampleRecord) HeartRate() (uint8, bool) {
	v, ok := r.Uint(RecordHeartRate)
	return uint8(v), ok
}

// Temperature returns the record temperature in °C.
func (r *SampleRecord) Temperature() (int8, bool) {
	v, ok := r.Int(RecordTemperature)
	return int8(v), ok
}

// HasTemperature reports whether the temperature field is part of the layout,
// including when it only holds the invalid sentinel.
func (r *SampleRecord) HasTemperature() bool {
	return r.HasField(RecordTemperature)
}

// RemoveTemperature drops the temperature field.
func (r *SampleRecord) RemoveTemperature() bool {
	return r.RemoveField(RecordTemperature)
}

// AvgCadence returns avg_cadence plus avg_fractional_cadence when present.
func (s *SessionSummary) AvgCadence() (float64, bool) {
	whole, ok := s.Uint(SessionAvgCadence)
	if !ok {
		return 0, false
	}
	out := float64(whole)
	if frac, ok := s.Uint(SessionAvgFractionalCadence); ok {
		out += float64(frac) / 128
	}
	return out, true
}

// AvgPower returns the session average power in watts.
func (s *SessionSummary) AvgPower() (uint16, bool) {
	v, ok := s.Uint(SessionAvgPower)
	return uint16(v), ok
}

// AvgHeartRate returns the session average heart rate in bpm.
func (s *SessionSummary) AvgHeartRate() (uint8, bool) {
	v, ok := s.Uint(SessionAvgHeartRate)
	return uint8(v), ok
}

// SetAverages overwrites the three session averages, adding the fields when
// the layout lacks them. Power and heart rate are rounded to the nearest
// integer; the fractional cadence part is kept in avg_fractional_cadence.
func (s *SessionSummary) SetAverages(cadence, power, heartRate float64) {
	whole, frac := math.Modf(math.Max(cadence, 0))
	fracRaw := math.Round(frac * 128)
	if fracRaw >= 128 {
		whole++
		fracRaw = 0
	}
	s.SetUint(SessionAvgCadence, BaseUint8, clampRound(whole, 0xFE))
	s.SetUint(SessionAvgFractionalCadence, BaseUint8, uint64(fracRaw))
	s.SetUint(SessionAvgPower, BaseUint16, clampRound(power, 0xFFFE))
	s.SetUint(SessionAvgHeartRate, BaseUint8, clampRound(heartRate, 0xFE))
}

func clampRound(v float64, limit uint64) uint64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	r := math.Round(v)
	if r >= float64(limit) {
		return limit
	}
	return uint64(r)
}
