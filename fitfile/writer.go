package fitfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/tormoder/fit/dyncrc16"
)

// Build serializes messages into a complete FIT file. A definition record is
// written before a message whenever its layout differs from the definition
// last written for its local message number.
func Build(h Header, msgs []Message) ([]byte, error) {
	var body bytes.Buffer
	var emitted [localMesgNumMask + 1]*definition

	for i, msg := range msgs {
		m := msg.Raw()
		if m.Local > localMesgNumMask {
			return nil, fmt.Errorf("message %d: local message number %d out of range", i, m.Local)
		}
		if m.Compressed && m.Local > 3 {
			return nil, fmt.Errorf("message %d: compressed header cannot address local message %d", i, m.Local)
		}
		def, err := layoutOf(m)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if prev := emitted[m.Local]; prev == nil || !prev.equal(def) {
			writeDefinition(&body, m.Local, def)
			emitted[m.Local] = def
		}
		writeData(&body, m)
	}

	if int64(body.Len()) > math.MaxUint32 {
		return nil, fmt.Errorf("fit data section too large: %d bytes", body.Len())
	}

	size := h.Size
	if size != headerSizeNoCRC {
		size = headerSizeCRC
	}
	out := make([]byte, size, int(size)+body.Len()+2)
	out[0] = size
	out[1] = h.ProtocolVersion
	binary.LittleEndian.PutUint16(out[2:4], h.ProfileVersion)
	binary.LittleEndian.PutUint32(out[4:8], uint32(body.Len()))
	copy(out[8:12], ".FIT")
	if size == headerSizeCRC {
		binary.LittleEndian.PutUint16(out[12:14], dyncrc16.Checksum(out[:12]))
	}
	out = append(out, body.Bytes()...)
	return binary.LittleEndian.AppendUint16(out, dyncrc16.Checksum(out)), nil
}

func layoutOf(m *Mesg) (*definition, error) {
	if len(m.Fields) > math.MaxUint8 || len(m.DevFields) > math.MaxUint8 {
		return nil, fmt.Errorf("too many fields for global message %d", m.Global)
	}
	def := &definition{
		global:    m.Global,
		bigEndian: m.BigEndian,
		fields:    make([]fieldDef, 0, len(m.Fields)),
	}
	for _, f := range m.Fields {
		if len(f.Data) > math.MaxUint8 {
			return nil, fmt.Errorf("field %d of global message %d is %d bytes", f.Num, m.Global, len(f.Data))
		}
		def.fields = append(def.fields, fieldDef{num: f.Num, size: uint8(len(f.Data)), baseRaw: f.BaseRaw})
	}
	for _, f := range m.DevFields {
		if len(f.Data) > math.MaxUint8 {
			return nil, fmt.Errorf("developer field %d of global message %d is %d bytes", f.Num, m.Global, len(f.Data))
		}
		def.devFields = append(def.devFields, devFieldDef{num: f.Num, size: uint8(len(f.Data)), devIndex: f.DevDataIndex})
	}
	return def, nil
}

func writeDefinition(buf *bytes.Buffer, local uint8, def *definition) {
	header := mesgDefinitionMask | local
	if len(def.devFields) > 0 {
		header |= devDataMask
	}
	buf.WriteByte(header)
	buf.WriteByte(0) // reserved
	global := make([]byte, 2)
	if def.bigEndian {
		buf.WriteByte(1)
		binary.BigEndian.PutUint16(global, def.global)
	} else {
		buf.WriteByte(0)
		binary.LittleEndian.PutUint16(global, def.global)
	}
	buf.Write(global)
	buf.WriteByte(uint8(len(def.fields)))
	for _, f := range def.fields {
		buf.Write([]byte{f.num, f.size, f.baseRaw})
	}
	if len(def.devFields) > 0 {
		buf.WriteByte(uint8(len(def.devFields)))
		for _, f := range def.devFields {
			buf.Write([]byte{f.num, f.size, f.devIndex})
		}
	}
}

func writeData(buf *bytes.Buffer, m *Mesg) {
	if m.Compressed {
		buf.WriteByte(compressedHeaderMask | m.Local<<5 | m.TimeOffset&compressedTimeMask)
	} else {
		buf.WriteByte(m.Local)
	}
	for _, f := range m.Fields {
		buf.Write(f.Data)
	}
	for _, f := range m.DevFields {
		buf.Write(f.Data)
	}
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so path never holds a partially written file.
func WriteFileAtomic(path string, data []byte) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
