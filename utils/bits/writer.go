// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

import (
	"encoding/binary"
)

// Writer 小端序字段写入器，用于打包与固件共享的参数块
type Writer struct {
	buf []byte
}

// NewWriter retruns a new Writer with capacity hint.
func NewWriter(capacity int) *Writer {
	return &Writer{
		buf: make([]byte, 0, capacity),
	}
}

// Reset 清空已写数据，保留底层缓冲
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// Pad 写入 n 个 0 字节
func (w *Writer) Pad(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// Align 按 n 字节对齐当前位置
func (w *Writer) Align(n int) {
	if rem := len(w.buf) % n; rem != 0 {
		w.Pad(n - rem)
	}
}

// PutUint8 write uint8.
func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

// PutUint16 write uint16.
func (w *Writer) PutUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutUint32 write uint32.
func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutUint64 write uint64.
func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// ==== shortcut methods

// PutInt8 write int8.
func (w *Writer) PutInt8(v int8) { w.PutUint8(uint8(v)) }

// PutInt16 write int16.
func (w *Writer) PutInt16(v int16) { w.PutUint16(uint16(v)) }

// PutInt32 write int32.
func (w *Writer) PutInt32(v int32) { w.PutUint32(uint32(v)) }

// PutInt64 write int64.
func (w *Writer) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutBool write bool as uint8.
func (w *Writer) PutBool(v bool) {
	if v {
		w.PutUint8(1)
	} else {
		w.PutUint8(0)
	}
}

// PutBool32 write bool as uint32.
func (w *Writer) PutBool32(v bool) {
	if v {
		w.PutUint32(1)
	} else {
		w.PutUint32(0)
	}
}

// Field 取 v 中从 shift 开始的 width 位
func Field(v uint32, shift, width uint) uint32 {
	return (v >> shift) & (1<<width - 1)
}
