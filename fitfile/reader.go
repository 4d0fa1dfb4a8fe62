package fitfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/tormoder/fit/dyncrc16"
)

type fieldDef struct {
	num     uint8
	size    uint8
	baseRaw uint8
}

type devFieldDef struct {
	num      uint8
	size     uint8
	devIndex uint8
}

type definition struct {
	global    uint16
	bigEndian bool
	fields    []fieldDef
	devFields []devFieldDef
}

func (d *definition) equal(o *definition) bool {
	if d.global != o.global || d.bigEndian != o.bigEndian ||
		len(d.fields) != len(o.fields) || len(d.devFields) != len(o.devFields) {
		return false
	}
	for i := range d.fields {
		if d.fields[i] != o.fields[i] {
			return false
		}
	}
	for i := range d.devFields {
		if d.devFields[i] != o.devFields[i] {
			return false
		}
	}
	return true
}

// Reader decodes a FIT file one data message at a time. Definition records
// are consumed internally; only data messages are returned.
type Reader struct {
	r      *bufio.Reader
	crc    dyncrc16.Hash16
	header Header
	remain int64
	done   bool

	defs           [localMesgNumMask + 1]*definition
	lastTimestamp  uint32
	lastTimeOffset int32
	recordIndex    int
}

// NewReader reads and validates the file header.
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{
		r:   bufio.NewReader(r),
		crc: dyncrc16.New(),
	}
	if err := rd.readHeader(); err != nil {
		return nil, err
	}
	return rd, nil
}

// Header returns the parsed file header.
func (rd *Reader) Header() Header {
	return rd.header
}

func (rd *Reader) readHeader() error {
	first, err := rd.r.ReadByte()
	if err != nil {
		return fmt.Errorf("read fit header: %w", ErrTruncated)
	}
	size := first
	if size != headerSizeNoCRC && size != headerSizeCRC {
		return fmt.Errorf("invalid fit header size: %d", size)
	}
	buf := make([]byte, size)
	buf[0] = first
	if _, err := io.ReadFull(rd.r, buf[1:]); err != nil {
		return fmt.Errorf("read fit header: %w", ErrTruncated)
	}
	if dataType := string(buf[8:12]); dataType != ".FIT" {
		return fmt.Errorf("invalid fit data type in header: %q", dataType)
	}
	if size == headerSizeCRC {
		stored := binary.LittleEndian.Uint16(buf[12:14])
		if stored != 0 && stored != dyncrc16.Checksum(buf[:12]) {
			return fmt.Errorf("header crc: %w", ErrChecksum)
		}
	}
	_, _ = rd.crc.Write(buf)

	rd.header = Header{
		Size:            size,
		ProtocolVersion: buf[1],
		ProfileVersion:  binary.LittleEndian.Uint16(buf[2:4]),
		DataSize:        binary.LittleEndian.Uint32(buf[4:8]),
	}
	rd.remain = int64(rd.header.DataSize)
	return nil
}

func (rd *Reader) read(n int) ([]byte, error) {
	if int64(n) > rd.remain {
		return nil, fmt.Errorf("record %d overruns data section: %w", rd.recordIndex, ErrTruncated)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("record %d: %w", rd.recordIndex, ErrTruncated)
		}
		return nil, err
	}
	_, _ = rd.crc.Write(buf)
	rd.remain -= int64(n)
	return buf, nil
}

// Next returns the next data message. After the last message it checks the
// file CRC and returns io.EOF.
func (rd *Reader) Next() (Message, error) {
	for {
		if rd.done {
			return nil, io.EOF
		}
		if rd.remain == 0 {
			if err := rd.finish(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		rd.recordIndex++
		hb, err := rd.read(1)
		if err != nil {
			return nil, err
		}
		headerByte := hb[0]

		switch {
		case headerByte&compressedHeaderMask == compressedHeaderMask:
			local := (headerByte & compressedLocalMesgNumMask) >> 5
			m, err := rd.readData(local)
			if err != nil {
				return nil, err
			}
			offset := int32(headerByte & compressedTimeMask)
			m.Compressed = true
			m.TimeOffset = uint8(offset)
			if rd.lastTimestamp != 0 {
				rd.lastTimestamp += uint32((offset - rd.lastTimeOffset) & compressedTimeMask)
				rd.lastTimeOffset = offset
				m.resolved = rd.lastTimestamp
			}
			return NewMessage(m), nil
		case headerByte&mesgDefinitionMask == mesgDefinitionMask:
			if err := rd.readDefinition(headerByte); err != nil {
				return nil, err
			}
		default:
			m, err := rd.readData(headerByte & localMesgNumMask)
			if err != nil {
				return nil, err
			}
			return NewMessage(m), nil
		}
	}
}

func (rd *Reader) finish() error {
	rd.done = true
	stored := make([]byte, 2)
	if _, err := io.ReadFull(rd.r, stored); err != nil {
		return fmt.Errorf("read file crc: %w", ErrTruncated)
	}
	if binary.LittleEndian.Uint16(stored) != rd.crc.Sum16() {
		return fmt.Errorf("file crc: %w", ErrChecksum)
	}
	return nil
}

func (rd *Reader) readDefinition(headerByte uint8) error {
	local := headerByte & localMesgNumMask
	fixed, err := rd.read(5)
	if err != nil {
		return err
	}
	def := &definition{}
	switch fixed[1] {
	case 0:
		def.global = binary.LittleEndian.Uint16(fixed[2:4])
	case 1:
		def.bigEndian = true
		def.global = binary.BigEndian.Uint16(fixed[2:4])
	default:
		return fmt.Errorf("invalid architecture byte %d at record %d", fixed[1], rd.recordIndex)
	}

	numFields := int(fixed[4])
	def.fields = make([]fieldDef, 0, numFields)
	for i := 0; i < numFields; i++ {
		raw, err := rd.read(3)
		if err != nil {
			return err
		}
		def.fields = append(def.fields, fieldDef{num: raw[0], size: raw[1], baseRaw: raw[2]})
	}

	if headerByte&devDataMask == devDataMask {
		count, err := rd.read(1)
		if err != nil {
			return err
		}
		def.devFields = make([]devFieldDef, 0, count[0])
		for i := 0; i < int(count[0]); i++ {
			raw, err := rd.read(3)
			if err != nil {
				return err
			}
			def.devFields = append(def.devFields, devFieldDef{num: raw[0], size: raw[1], devIndex: raw[2]})
		}
	}

	rd.defs[local] = def
	return nil
}

func (rd *Reader) readData(local uint8) (Mesg, error) {
	def := rd.defs[local]
	if def == nil {
		return Mesg{}, fmt.Errorf("missing definition for data message local=%d record=%d", local, rd.recordIndex)
	}
	m := Mesg{
		Global:    def.global,
		Local:     local,
		BigEndian: def.bigEndian,
		Fields:    make([]Field, 0, len(def.fields)),
	}
	for _, fd := range def.fields {
		raw, err := rd.read(int(fd.size))
		if err != nil {
			return Mesg{}, err
		}
		m.Fields = append(m.Fields, Field{Num: fd.num, BaseRaw: fd.baseRaw, Data: raw})
	}
	for _, dd := range def.devFields {
		raw, err := rd.read(int(dd.size))
		if err != nil {
			return Mesg{}, err
		}
		m.DevFields = append(m.DevFields, DevField{Num: dd.num, DevDataIndex: dd.devIndex, Data: raw})
	}
	if ts, ok := m.Uint(FieldTimestamp); ok {
		rd.lastTimestamp = uint32(ts)
		rd.lastTimeOffset = int32(ts & compressedTimeMask)
	}
	return m, nil
}

// File is a fully decoded FIT file.
type File struct {
	Header   Header
	Messages []Message
}

// Decode reads every data message of a FIT file.
func Decode(r io.Reader) (*File, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	out := &File{Header: rd.Header()}
	for {
		msg, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msg)
	}
}
