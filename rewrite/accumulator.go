package rewrite

import "github.com/lucasjlepore/fitsync/fitfile"

// Accumulator collects per-sample cadence, power and heart rate. The three
// sequences always have equal length; a missing value is stored as 0.
type Accumulator struct {
	Cadence   []float64
	Power     []float64
	HeartRate []float64
}

// Add appends one sample.
func (a *Accumulator) Add(cadence, power, heartRate float64) {
	a.Cadence = append(a.Cadence, cadence)
	a.Power = append(a.Power, power)
	a.HeartRate = append(a.HeartRate, heartRate)
}

// AddRecord appends the values carried by rec.
func (a *Accumulator) AddRecord(rec *fitfile.SampleRecord) {
	var cad, pwr, hr float64
	if v, ok := rec.Cadence(); ok {
		cad = float64(v)
	}
	if v, ok := rec.Power(); ok {
		pwr = float64(v)
	}
	if v, ok := rec.HeartRate(); ok {
		hr = float64(v)
	}
	a.Add(cad, pwr, hr)
}

// Len returns the number of samples.
func (a *Accumulator) Len() int {
	return len(a.Cadence)
}

// Averages returns the mean cadence, power and heart rate.
func (a *Accumulator) Averages() (cadence, power, heartRate float64) {
	return Average(a.Cadence), Average(a.Power), Average(a.HeartRate)
}

// Average returns the arithmetic mean of values, or 0 for an empty slice.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
