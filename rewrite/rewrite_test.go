package rewrite

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"

	"github.com/lucasjlepore/fitsync/fitfile"
	"github.com/lucasjlepore/fitsync/internal/fittest"
)

func TestAverage(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"five values", []float64{100, 150, 200, 250, 300}, 200},
		{"empty", nil, 0},
		{"single", []float64{42}, 42},
		{"fractional", []float64{90, 95}, 92.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Average(tt.values))
		})
	}
}

func TestAccumulatorKeepsSequencesAligned(t *testing.T) {
	data := fittest.Build(t, fittest.Messages([]fittest.Sample{
		{Time: fittest.Start, Cadence: fittest.U8(80)},
		{Time: fittest.Start.Add(time.Second), Power: fittest.U16(300), HeartRate: fittest.U8(140)},
	}))
	file, err := fitfile.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	acc := &Accumulator{}
	for _, msg := range file.Messages {
		if rec, ok := msg.(*fitfile.SampleRecord); ok {
			acc.AddRecord(rec)
		}
	}
	require.Equal(t, 2, acc.Len())
	assert.Equal(t, []float64{80, 0}, acc.Cadence)
	assert.Equal(t, []float64{0, 300}, acc.Power)
	assert.Equal(t, []float64{0, 140}, acc.HeartRate)

	cad, pwr, hr := acc.Averages()
	assert.Equal(t, 40.0, cad)
	assert.Equal(t, 150.0, pwr)
	assert.Equal(t, 70.0, hr)
}

func TestRewriteTwoSampleRide(t *testing.T) {
	data := fittest.Build(t, fittest.Messages(fittest.TwoSamples()))

	res, err := Rewriter{}.Rewrite(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, Stats{
		Records:            2,
		TemperatureRemoved: 2,
		SessionsUpdated:    1,
		AvgCadence:         92.5,
		AvgPower:           205,
		AvgHeartRate:       152.5,
	}, res.Stats)
	assert.Len(t, res.Messages, 6)

	out, err := fitfile.Build(res.Header, res.Messages)
	require.NoError(t, err)

	decoded, err := fitfile.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	var session *fitfile.SessionSummary
	for _, msg := range decoded.Messages {
		switch m := msg.(type) {
		case *fitfile.SampleRecord:
			assert.False(t, m.HasTemperature())
		case *fitfile.SessionSummary:
			session = m
		}
	}
	require.NotNil(t, session)
	cad, ok := session.AvgCadence()
	require.True(t, ok)
	assert.Equal(t, 92.5, cad)
	pwr, _ := session.AvgPower()
	assert.EqualValues(t, 205, pwr)
	hr, _ := session.AvgHeartRate()
	assert.EqualValues(t, 153, hr)

	// An independent decoder sees the same values.
	ff, err := fit.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	act, err := ff.Activity()
	require.NoError(t, err)
	require.Len(t, act.Sessions, 1)
	assert.EqualValues(t, 92, act.Sessions[0].AvgCadence)
	assert.EqualValues(t, 64, act.Sessions[0].AvgFractionalCadence)
	assert.EqualValues(t, 205, act.Sessions[0].AvgPower)
	assert.EqualValues(t, 153, act.Sessions[0].AvgHeartRate)
	for _, rec := range act.Records {
		assert.EqualValues(t, 0x7F, rec.Temperature)
	}
}

func TestRewriteZeroSamples(t *testing.T) {
	msgs := fittest.Messages(nil)
	data := fittest.Build(t, msgs)

	res, err := Rewrite(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, res.Messages, len(msgs))
	assert.Equal(t, 0, res.Stats.Records)
	assert.Equal(t, 1, res.Stats.SessionsUpdated)

	for _, msg := range res.Messages {
		session, ok := msg.(*fitfile.SessionSummary)
		if !ok {
			continue
		}
		cad, ok := session.AvgCadence()
		require.True(t, ok)
		assert.Zero(t, cad)
		pwr, _ := session.AvgPower()
		assert.Zero(t, pwr)
		hr, _ := session.AvgHeartRate()
		assert.Zero(t, hr)
	}
}

func TestRewriteCountsOnlyRecordsWithTemperature(t *testing.T) {
	samples := []fittest.Sample{
		{Time: fittest.Start, Power: fittest.U16(100), Temperature: fittest.I8(20)},
		{Time: fittest.Start.Add(time.Second), Power: fittest.U16(110)},
		{Time: fittest.Start.Add(2 * time.Second), Power: fittest.U16(120), Temperature: fittest.I8(21)},
	}
	res, err := Rewrite(bytes.NewReader(fittest.Build(t, fittest.Messages(samples))))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Records)
	assert.Equal(t, 2, res.Stats.TemperatureRemoved)
	assert.Equal(t, 110.0, res.Stats.AvgPower)
}

func TestRewriteLeavesOtherMessagesUntouched(t *testing.T) {
	msgs := fittest.Messages(fittest.TwoSamples())
	data := fittest.Build(t, msgs)
	before, err := fitfile.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	res, err := Rewrite(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, res.Messages, len(before.Messages))

	for i, msg := range res.Messages {
		switch msg.(type) {
		case *fitfile.SampleRecord, *fitfile.SessionSummary:
			continue
		}
		assert.Equal(t, before.Messages[i].Raw().Fields, msg.Raw().Fields, "message %d", i)
		assert.Equal(t, before.Messages[i].Raw().Global, msg.Raw().Global, "message %d", i)
	}
}

func TestRewriteSessionBeforeSamples(t *testing.T) {
	msgs := []fitfile.Message{
		fittest.FileID(fittest.Start),
		fittest.Session(fittest.Start, fittest.Start),
	}
	for _, s := range fittest.TwoSamples() {
		msgs = append(msgs, fittest.Record(s))
	}

	res, err := Rewrite(bytes.NewReader(fittest.Build(t, msgs)))
	require.NoError(t, err)
	session := res.Messages[1].(*fitfile.SessionSummary)
	pwr, ok := session.AvgPower()
	require.True(t, ok)
	assert.Zero(t, pwr)
}

func TestRewriteRejectsCorruptInput(t *testing.T) {
	data := fittest.Build(t, fittest.Messages(fittest.TwoSamples()))
	data[len(data)-1] ^= 0xFF

	_, err := Rewrite(bytes.NewReader(data))
	require.Error(t, err)
	assert.ErrorIs(t, err, fitfile.ErrChecksum)
}
