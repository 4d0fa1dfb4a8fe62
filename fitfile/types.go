package fitfile

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

const (
	compressedHeaderMask       = 0x80
	compressedLocalMesgNumMask = 0x60
	compressedTimeMask         = 0x1F
	mesgDefinitionMask         = 0x40
	devDataMask                = 0x20
	localMesgNumMask           = 0x0F

	headerSizeNoCRC = 12
	headerSizeCRC   = 14
)

// Global message numbers the rewrite pipeline cares about.
const (
	MesgNumFileID  uint16 = 0
	MesgNumSession uint16 = 18
	MesgNumLap     uint16 = 19
	MesgNumRecord  uint16 = 20
)

// Field numbers read or mutated by the rewrite pipeline.
const (
	FieldTimestamp uint8 = 253

	RecordHeartRate   uint8 = 3
	RecordCadence     uint8 = 4
	RecordPower       uint8 = 7
	RecordTemperature uint8 = 13

	SessionAvgHeartRate         uint8 = 16
	SessionAvgCadence           uint8 = 18
	SessionAvgPower             uint8 = 20
	SessionAvgFractionalCadence uint8 = 92
)

var (
	// ErrChecksum reports a header or file CRC that does not match the content.
	ErrChecksum = errors.New("fit checksum mismatch")
	// ErrTruncated reports a stream that ended inside the header or data section.
	ErrTruncated = errors.New("fit data truncated")
)

// BaseType is the canonical FIT base type byte.
type BaseType uint8

const (
	BaseEnum    BaseType = 0x00
	BaseSint8   BaseType = 0x01
	BaseUint8   BaseType = 0x02
	BaseSint16  BaseType = 0x83
	BaseUint16  BaseType = 0x84
	BaseSint32  BaseType = 0x85
	BaseUint32  BaseType = 0x86
	BaseString  BaseType = 0x07
	BaseFloat32 BaseType = 0x88
	BaseFloat64 BaseType = 0x89
	BaseUint8z  BaseType = 0x0A
	BaseUint16z BaseType = 0x8B
	BaseUint32z BaseType = 0x8C
	BaseByte    BaseType = 0x0D
	BaseSint64  BaseType = 0x8E
	BaseUint64  BaseType = 0x8F
	BaseUint64z BaseType = 0x90
)

type baseSpec struct {
	name    string
	size    int
	signed  bool
	invalid uint64
}

var baseSpecs = map[BaseType]baseSpec{
	BaseEnum:    {name: "enum", size: 1, invalid: 0xFF},
	BaseSint8:   {name: "sint8", size: 1, signed: true, invalid: 0x7F},
	BaseUint8:   {name: "uint8", size: 1, invalid: 0xFF},
	BaseSint16:  {name: "sint16", size: 2, signed: true, invalid: 0x7FFF},
	BaseUint16:  {name: "uint16", size: 2, invalid: 0xFFFF},
	BaseSint32:  {name: "sint32", size: 4, signed: true, invalid: 0x7FFFFFFF},
	BaseUint32:  {name: "uint32", size: 4, invalid: 0xFFFFFFFF},
	BaseString:  {name: "string", size: 1, invalid: 0x00},
	BaseFloat32: {name: "float32", size: 4, signed: true, invalid: 0xFFFFFFFF},
	BaseFloat64: {name: "float64", size: 8, signed: true, invalid: math.MaxUint64},
	BaseUint8z:  {name: "uint8z", size: 1, invalid: 0x00},
	BaseUint16z: {name: "uint16z", size: 2, invalid: 0x0000},
	BaseUint32z: {name: "uint32z", size: 4, invalid: 0x00000000},
	BaseByte:    {name: "byte", size: 1, invalid: 0xFF},
	BaseSint64:  {name: "sint64", size: 8, signed: true, invalid: 0x7FFFFFFFFFFFFFFF},
	BaseUint64:  {name: "uint64", size: 8, invalid: math.MaxUint64},
	BaseUint64z: {name: "uint64z", size: 8, invalid: 0x0000000000000000},
}

// String returns the FIT profile name of the base type.
func (b BaseType) String() string {
	if spec, ok := baseSpecs[b]; ok {
		return spec.name
	}
	return "unknown"
}

// Size returns the byte width of one element of the base type, or 0 if unknown.
func (b BaseType) Size() int {
	return baseSpecs[b].size
}

func decompressBaseType(b byte) BaseType {
	switch b & 0x1F {
	case 0x03:
		return BaseSint16
	case 0x04:
		return BaseUint16
	case 0x05:
		return BaseSint32
	case 0x06:
		return BaseUint32
	case 0x08:
		return BaseFloat32
	case 0x09:
		return BaseFloat64
	case 0x0B:
		return BaseUint16z
	case 0x0C:
		return BaseUint32z
	case 0x0E:
		return BaseSint64
	case 0x0F:
		return BaseUint64
	case 0x10:
		return BaseUint64z
	default:
		return BaseType(b & 0x1F)
	}
}

// Header stores the FIT file header values that survive a rewrite.
type Header struct {
	Size            uint8
	ProtocolVersion uint8
	ProfileVersion  uint16
	DataSize        uint32
}

// DefaultHeader is used when building a file from scratch.
func DefaultHeader() Header {
	return Header{
		Size:            headerSizeCRC,
		ProtocolVersion: 0x20,
		ProfileVersion:  2132,
	}
}

// Field is one profile field of a data message, kept as raw bytes in the
// message's byte order.
type Field struct {
	Num     uint8
	BaseRaw uint8
	Data    []byte
}

// Base returns the canonical base type of the field.
func (f Field) Base() BaseType {
	return decompressBaseType(f.BaseRaw)
}

// DevField is a developer data field. The pipeline never interprets it.
type DevField struct {
	Num          uint8
	DevDataIndex uint8
	Data         []byte
}

// Mesg is a decoded FIT data message together with the layout it was
// written with.
type Mesg struct {
	Global    uint16
	Local     uint8
	BigEndian bool
	Fields    []Field
	DevFields []DevField

	// Compressed marks a compressed-timestamp header; TimeOffset holds its
	// 5-bit offset.
	Compressed bool
	TimeOffset uint8

	// resolved is the timestamp derived from a compressed header.
	resolved uint32
}

// NewMesg returns an empty little-endian message.
func NewMesg(global uint16, local uint8) Mesg {
	return Mesg{Global: global, Local: local}
}

func (m *Mesg) order() binary.ByteOrder {
	if m.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Field returns the field with the given number.
func (m *Mesg) Field(num uint8) (*Field, bool) {
	for i := range m.Fields {
		if m.Fields[i].Num == num {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// HasField reports whether the message layout carries the field.
func (m *Mesg) HasField(num uint8) bool {
	_, ok := m.Field(num)
	return ok
}

// RemoveField drops the field from the message and reports whether it was present.
func (m *Mesg) RemoveField(num uint8) bool {
	for i := range m.Fields {
		if m.Fields[i].Num == num {
			m.Fields = append(m.Fields[:i], m.Fields[i+1:]...)
			return true
		}
	}
	return false
}

// Uint returns a scalar field as an unsigned value. Missing fields, arrays
// and invalid sentinels report false.
func (m *Mesg) Uint(num uint8) (uint64, bool) {
	f, ok := m.Field(num)
	if !ok {
		return 0, false
	}
	bt := f.Base()
	spec, known := baseSpecs[bt]
	if !known || len(f.Data) != spec.size {
		return 0, false
	}
	raw := readRaw(f.Data, m.order())
	if raw == spec.invalid {
		return 0, false
	}
	return raw, true
}

// Int returns a scalar field sign-extended to int64.
func (m *Mesg) Int(num uint8) (int64, bool) {
	f, ok := m.Field(num)
	if !ok {
		return 0, false
	}
	raw, ok := m.Uint(num)
	if !ok {
		return 0, false
	}
	if !baseSpecs[f.Base()].signed {
		return int64(raw), true
	}
	shift := 64 - 8*uint(len(f.Data))
	return int64(raw<<shift) >> shift, true
}

// SetUint writes a scalar value, replacing the field in place when it exists
// and appending it to the layout otherwise.
func (m *Mesg) SetUint(num uint8, bt BaseType, v uint64) {
	spec := baseSpecs[bt]
	data := make([]byte, spec.size)
	writeRaw(data, m.order(), v)
	field := Field{Num: num, BaseRaw: uint8(bt), Data: data}
	for i := range m.Fields {
		if m.Fields[i].Num == num {
			m.Fields[i] = field
			return
		}
	}
	m.Fields = append(m.Fields, field)
}

// SetInt writes a signed scalar value.
func (m *Mesg) SetInt(num uint8, bt BaseType, v int64) {
	m.SetUint(num, bt, uint64(v))
}

// Timestamp returns the message time from field 253 or from the compressed
// header it was read with.
func (m *Mesg) Timestamp() (time.Time, bool) {
	if ts, ok := m.Uint(FieldTimestamp); ok {
		return fitTimestampToUTC(uint32(ts)), true
	}
	if m.Compressed && m.resolved != 0 {
		return fitTimestampToUTC(m.resolved), true
	}
	return time.Time{}, false
}

func readRaw(b []byte, order binary.ByteOrder) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	case 8:
		return order.Uint64(b)
	default:
		return 0
	}
}

func writeRaw(b []byte, order binary.ByteOrder, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		order.PutUint16(b, uint16(v))
	case 4:
		order.PutUint32(b, uint32(v))
	case 8:
		order.PutUint64(b, v)
	}
}

var fitEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

func fitTimestampToUTC(ts uint32) time.Time {
	return fitEpoch.Add(time.Duration(ts) * time.Second)
}

// TimestampFromTime converts a time into FIT seconds since 1989-12-31 UTC.
func TimestampFromTime(t time.Time) uint32 {
	return uint32(t.UTC().Sub(fitEpoch) / time.Second)
}
