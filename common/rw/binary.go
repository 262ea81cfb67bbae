package rw

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ReaderWriter is a little-endian codec over an in-memory buffer.
// Reads past the end record a sticky error and return zero values,
// so a decoder checks Err once after reading a whole record.
type ReaderWriter struct {
	order   binary.ByteOrder
	dataBuf []byte
	rw      bytes.Buffer
	err     error
}

func NewBinWriter() *ReaderWriter {
	return &ReaderWriter{order: binary.LittleEndian, dataBuf: make([]byte, 8)}
}

func NewBinReader(data []byte) *ReaderWriter {
	d := &ReaderWriter{order: binary.LittleEndian, dataBuf: make([]byte, 8)}
	d.rw.Write(data)
	return d
}

func (w *ReaderWriter) Err() error {
	return w.err
}

func (w *ReaderWriter) read(n int) []byte {
	if w.err != nil {
		clear(w.dataBuf)
		return w.dataBuf[:n]
	}
	got, err := io.ReadFull(&w.rw, w.dataBuf[:n])
	if err != nil {
		w.err = fmt.Errorf("read %d bytes, got %d: %w", n, got, io.ErrUnexpectedEOF)
		clear(w.dataBuf)
	}
	return w.dataBuf[:n]
}

func (w *ReaderWriter) ReadUInt8() uint8 {
	return w.read(1)[0]
}

func (w *ReaderWriter) ReadUInt8s(value []uint8) {
	for i := range value {
		value[i] = w.ReadUInt8()
	}
}

func (w *ReaderWriter) ReadUInt16() uint16 {
	return w.order.Uint16(w.read(2))
}

func (w *ReaderWriter) ReadInt16() int16 {
	return int16(w.ReadUInt16())
}

func (w *ReaderWriter) ReadUInt16s(value []uint16) {
	for i := range value {
		value[i] = w.ReadUInt16()
	}
}

func (w *ReaderWriter) ReadUInt32() uint32 {
	return w.order.Uint32(w.read(4))
}

func (w *ReaderWriter) ReadInt32() int32 {
	return int32(w.ReadUInt32())
}

func (w *ReaderWriter) ReadUInt32s(value []uint32) {
	for i := range value {
		value[i] = w.ReadUInt32()
	}
}

func (w *ReaderWriter) ReadUInt64() uint64 {
	return w.order.Uint64(w.read(8))
}

func (w *ReaderWriter) ReadFloat32() float32 {
	return math.Float32frombits(w.ReadUInt32())
}

func (w *ReaderWriter) WriteInt8(v interface{}) {
	switch value := v.(type) {
	case int8:
		w.rw.WriteByte(byte(value))
	case uint8:
		w.rw.WriteByte(value)
	default:
		panic(fmt.Sprintf("rw: WriteInt8 unsupported type %T", v))
	}
}

func (w *ReaderWriter) WriteInt8s(v []uint8) {
	w.rw.Write(v)
}

func (w *ReaderWriter) WriteInt16(v interface{}) {
	switch value := v.(type) {
	case int16:
		w.order.PutUint16(w.dataBuf, uint16(value))
	case uint16:
		w.order.PutUint16(w.dataBuf, value)
	default:
		panic(fmt.Sprintf("rw: WriteInt16 unsupported type %T", v))
	}
	w.rw.Write(w.dataBuf[:2])
}

func (w *ReaderWriter) WriteInt32(v interface{}) {
	switch value := v.(type) {
	case int32:
		w.order.PutUint32(w.dataBuf, uint32(value))
	case int:
		w.order.PutUint32(w.dataBuf, uint32(value))
	case uint32:
		w.order.PutUint32(w.dataBuf, value)
	default:
		panic(fmt.Sprintf("rw: WriteInt32 unsupported type %T", v))
	}
	w.rw.Write(w.dataBuf[:4])
}

func (w *ReaderWriter) WriteInt32s(v []uint32) {
	for _, tmp := range v {
		w.WriteInt32(tmp)
	}
}

func (w *ReaderWriter) WriteUInt64(v uint64) {
	w.order.PutUint64(w.dataBuf, v)
	w.rw.Write(w.dataBuf[:8])
}

func (w *ReaderWriter) WriteFloat32(v interface{}) {
	switch value := v.(type) {
	case float32:
		w.order.PutUint32(w.dataBuf, math.Float32bits(value))
	case float64:
		w.order.PutUint32(w.dataBuf, math.Float32bits(float32(value)))
	default:
		panic(fmt.Sprintf("rw: WriteFloat32 unsupported type %T", v))
	}
	w.rw.Write(w.dataBuf[:4])
}

func (w *ReaderWriter) GetWriteBytes() []byte {
	return w.rw.Bytes()
}

// Size is the number of unread bytes.
func (w *ReaderWriter) Size() int {
	return w.rw.Len()
}
