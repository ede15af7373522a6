// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vdec

import (
	"fmt"

	"github.com/cnotch/av1vdec/utils/bits"
)

// CrcCount 状态块中的 CRC 数量
const CrcCount = 16

// State 固件在每个阶段结束后写回的状态块
type State struct {
	Err     int32            `json:"err"`
	Full    uint32           `json:"full"`    // 输出缓冲满
	Timeout uint32           `json:"timeout"` // 驱动等待超时，固件据此中止
	Perf    uint32           `json:"perf"`
	Crc     [CrcCount]uint32 `json:"crc"`
	OutSize uint32           `json:"out_size"`
}

// Span 环形缓冲中的一段区域，Start/End 为单调递增的逻辑位置
type Span struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Len 区域长度
func (s Span) Len() uint64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Header vsi 的公共头部，位于偏移 0，固件只回写此部分
type Header struct {
	State State
	Ube   Mem  // 转码输出缓冲（UBE）
	Trans Span // LAT 可写入的区域，固件回写实际结束位置
}

// HeaderSize 头部打包后的字节数
const HeaderSize = 4*4 + CrcCount*4 + 4 + 4 + 8*2 + 8*2

// Put 把头部写入 w
func (h *Header) Put(w *bits.Writer) {
	st := &h.State
	w.PutInt32(st.Err)
	w.PutUint32(st.Full)
	w.PutUint32(st.Timeout)
	w.PutUint32(st.Perf)
	for _, crc := range st.Crc {
		w.PutUint32(crc)
	}
	w.PutUint32(st.OutSize)
	w.PutUint32(0) // reserved
	w.PutUint64(h.Ube.Addr)
	w.PutUint64(h.Ube.Size)
	w.PutUint64(h.Trans.Start)
	w.PutUint64(h.Trans.End)
}

// Marshal 打包头部
func (h *Header) Marshal() []byte {
	w := bits.NewWriter(HeaderSize)
	h.Put(w)
	return w.Bytes()
}

// Unmarshal 从固件回写的字节解析头部
func (h *Header) Unmarshal(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("vsi header needs %d bytes, got %d: %w", HeaderSize, len(data), ErrInvalidParam)
	}

	r := bits.NewReader(data)
	st := &h.State
	st.Err = r.ReadInt32()
	st.Full = r.ReadUint32()
	st.Timeout = r.ReadUint32()
	st.Perf = r.ReadUint32()
	for i := range st.Crc {
		st.Crc[i] = r.ReadUint32()
	}
	st.OutSize = r.ReadUint32()
	r.Skip(4)
	h.Ube.Addr = r.ReadUint64()
	h.Ube.Size = r.ReadUint64()
	h.Trans.Start = r.ReadUint64()
	h.Trans.End = r.ReadUint64()
	return r.Err()
}
