// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer 读超出缓冲范围
var ErrShortBuffer = errors.New("bits: short buffer")

// Reader 小端序字段读取器，读取固件写回的参数块
type Reader struct {
	buf    []byte
	offset int // byte base
	err    error
}

// NewReader retruns a new Reader.
func NewReader(buf []byte) *Reader {
	return &Reader{
		buf: buf,
	}
}

// Err 返回第一次越界错误
func (r *Reader) Err() error { return r.err }

// Skip skip n bytes.
func (r *Reader) Skip(n int) {
	if n <= 0 {
		return
	}
	r.next(n)
}

// Offset returns the offset of bytes.
func (r *Reader) Offset() int {
	return r.offset
}

// BytesLeft returns the left byte slice.
func (r *Reader) BytesLeft() []byte {
	if r.offset >= len(r.buf) {
		return nil
	}
	return r.buf[r.offset:]
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.offset+n > len(r.buf) {
		r.err = ErrShortBuffer
		r.offset = len(r.buf)
		return nil
	}
	b := r.buf[r.offset : r.offset+n]
	r.offset += n
	return b
}

// ReadUint8 read uint8.
func (r *Reader) ReadUint8() uint8 {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadUint16 read uint16.
func (r *Reader) ReadUint16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// ReadUint32 read uint32.
func (r *Reader) ReadUint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadUint64 read uint64.
func (r *Reader) ReadUint64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// ==== shortcut methods

// ReadInt8 read int8.
func (r *Reader) ReadInt8() int8 { return int8(r.ReadUint8()) }

// ReadInt16 read int16.
func (r *Reader) ReadInt16() int16 { return int16(r.ReadUint16()) }

// ReadInt32 read int32.
func (r *Reader) ReadInt32() int32 { return int32(r.ReadUint32()) }

// ReadInt64 read int64.
func (r *Reader) ReadInt64() int64 { return int64(r.ReadUint64()) }

// ReadBool read uint8 as bool.
func (r *Reader) ReadBool() bool { return r.ReadUint8() != 0 }
