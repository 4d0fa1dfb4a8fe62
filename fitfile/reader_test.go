package fitfile_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tormoder/fit"

	"github.com/lucasjlepore/fitsync/fitfile"
	"github.com/lucasjlepore/fitsync/internal/fittest"
)

func TestReaderDecodesIndependentlyEncodedFile(t *testing.T) {
	data := buildTormoderFIT(t)

	file, err := fitfile.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(file.Messages) == 0 {
		t.Fatal("expected messages, got none")
	}
	if _, ok := file.Messages[0].(*fitfile.Other); !ok || file.Messages[0].Raw().Global != fitfile.MesgNumFileID {
		t.Fatalf("first message should be file_id, got %T global=%d", file.Messages[0], file.Messages[0].Raw().Global)
	}

	var records []*fitfile.SampleRecord
	for _, msg := range file.Messages {
		if rec, ok := msg.(*fitfile.SampleRecord); ok {
			records = append(records, rec)
		}
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if v, ok := records[0].Cadence(); !ok || v != 92 {
		t.Fatalf("cadence = %d,%t want 92", v, ok)
	}
	if v, ok := records[0].Power(); !ok || v != 245 {
		t.Fatalf("power = %d,%t want 245", v, ok)
	}
	if v, ok := records[0].HeartRate(); !ok || v != 135 {
		t.Fatalf("heart rate = %d,%t want 135", v, ok)
	}
	if ts, ok := records[0].Timestamp(); !ok || !ts.Equal(fittest.Start.Add(30*time.Second)) {
		t.Fatalf("timestamp = %v,%t", ts, ok)
	}
}

func TestReaderStreamsMessagesInOrder(t *testing.T) {
	data := fittest.Build(t, fittest.Messages(fittest.TwoSamples()))

	rd, err := fitfile.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewReader error: %v", err)
	}
	if rd.Header().ProtocolVersion != fitfile.DefaultHeader().ProtocolVersion {
		t.Fatalf("unexpected protocol version %d", rd.Header().ProtocolVersion)
	}

	var kinds []string
	for {
		msg, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		switch msg.(type) {
		case *fitfile.SampleRecord:
			kinds = append(kinds, "record")
		case *fitfile.Lap:
			kinds = append(kinds, "lap")
		case *fitfile.SessionSummary:
			kinds = append(kinds, "session")
		default:
			kinds = append(kinds, "other")
		}
	}
	want := []string{"other", "record", "record", "lap", "session", "other"}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("message %d: got %s, want %s", i, kinds[i], want[i])
		}
	}

	if _, err := rd.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next after end = %v, want io.EOF", err)
	}
}

func TestReaderRejectsCorruptFileCRC(t *testing.T) {
	data := fittest.Build(t, fittest.Messages(fittest.TwoSamples()))
	data[len(data)-1] ^= 0xFF

	_, err := fitfile.Decode(bytes.NewReader(data))
	if !errors.Is(err, fitfile.ErrChecksum) {
		t.Fatalf("Decode error = %v, want ErrChecksum", err)
	}
}

func TestReaderRejectsCorruptHeaderCRC(t *testing.T) {
	data := fittest.Build(t, fittest.Messages(nil))
	binary.LittleEndian.PutUint16(data[12:14], 0xBEEF)

	_, err := fitfile.NewReader(bytes.NewReader(data))
	if !errors.Is(err, fitfile.ErrChecksum) {
		t.Fatalf("NewReader error = %v, want ErrChecksum", err)
	}
}

func TestReaderRejectsTruncatedFile(t *testing.T) {
	data := fittest.Build(t, fittest.Messages(fittest.TwoSamples()))

	_, err := fitfile.Decode(bytes.NewReader(data[:len(data)-20]))
	if !errors.Is(err, fitfile.ErrTruncated) {
		t.Fatalf("Decode error = %v, want ErrTruncated", err)
	}
}

func TestReaderRejectsNonFITInput(t *testing.T) {
	_, err := fitfile.NewReader(bytes.NewReader([]byte("this is not a fit file at all")))
	if err == nil {
		t.Fatal("expected error for non-FIT input")
	}
}

func TestReaderResolvesCompressedTimestamps(t *testing.T) {
	base := fittest.Record(fittest.Sample{Time: fittest.Start, Power: fittest.U16(100)})
	ts := fitfile.TimestampFromTime(fittest.Start)

	next := fitfile.NewMesg(fitfile.MesgNumRecord, 0)
	next.SetUint(fitfile.RecordPower, fitfile.BaseUint16, 110)
	next.Compressed = true
	next.TimeOffset = uint8((ts + 3) & 0x1F)

	data := fittest.Build(t, []fitfile.Message{fittest.FileID(fittest.Start), base, fitfile.NewMessage(next)})
	file, err := fitfile.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	last := file.Messages[len(file.Messages)-1].Raw()
	if !last.Compressed {
		t.Fatal("expected compressed header to be preserved")
	}
	got, ok := last.Timestamp()
	if !ok || !got.Equal(fittest.Start.Add(3*time.Second)) {
		t.Fatalf("compressed timestamp = %v,%t want %v", got, ok, fittest.Start.Add(3*time.Second))
	}
}

func buildTormoderFIT(t *testing.T) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}

	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	start := fittest.Start
	event := fit.NewEventMsg()
	event.Timestamp = start
	event.Event = fit.EventTimer
	event.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, event)

	record := fit.NewRecordMsg()
	record.Timestamp = start.Add(30 * time.Second)
	record.HeartRate = 135
	record.Power = 245
	record.Cadence = 92
	activity.Records = append(activity.Records, record)

	stop := fit.NewEventMsg()
	stop.Timestamp = start.Add(10 * time.Minute)
	stop.Event = fit.EventTimer
	stop.EventType = fit.EventTypeStop
	activity.Events = append(activity.Events, stop)

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}
