// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"errors"
	"fmt"

	obu "github.com/cnotch/av1vdec/av/codec/av1"
)

// 参考槽常量
const (
	MaxFrameBufCount = obu.TotalRefsPerFrame + 1 // 参考槽数量
	InvalidIndex     = -1
)

// 槽计数错误
var (
	ErrRefCountUnderflow = errors.New("av1: slot ref count underflow")
	ErrSlotIndex         = errors.New("av1: invalid slot index")
)

// FrameInfo 参考槽中保存的帧信息
type FrameInfo struct {
	FrameType     obu.FrameType `json:"frame_type"`
	FrameIsIntra  bool          `json:"frame_is_intra"`
	OrderHint     uint32        `json:"order_hint"`
	UpscaledWidth uint32        `json:"upscaled_width"`
	PicPitch      uint32        `json:"pic_pitch"`
	FrameWidth    uint32        `json:"frame_width"`
	FrameHeight   uint32        `json:"frame_height"`
	MiRows        uint32        `json:"mi_rows"`
	MiCols        uint32        `json:"mi_cols"`
	RefCount      int32         `json:"ref_count"`
}

// SlotTable 参考槽表，值类型，可整体复制；只允许单一写者
type SlotTable struct {
	FrameInfo   [MaxFrameBufCount]FrameInfo `json:"frame_info"`
	RefFrameMap [obu.TotalRefsPerFrame]int  `json:"ref_frame_map"`
	Timestamp   [MaxFrameBufCount]uint64    `json:"timestamp"`
}

// NewSlotTable 创建参考帧映射全部无效的槽表
func NewSlotTable() SlotTable {
	var st SlotTable
	st.ResetReferenceMap()
	return st
}

// ResetReferenceMap 参考帧映射全部置为无效
func (st *SlotTable) ResetReferenceMap() {
	for i := range st.RefFrameMap {
		st.RefFrameMap[i] = InvalidIndex
	}
}

// AcquireSlot 取第一个引用计数为 0 的槽，计数置 1 并记录时间戳；
// 没有空闲槽时返回 InvalidIndex
func (st *SlotTable) AcquireSlot(ts uint64) int {
	for i := range st.FrameInfo {
		if st.FrameInfo[i].RefCount == 0 {
			st.FrameInfo[i].RefCount++
			st.Timestamp[i] = ts
			return i
		}
	}
	return InvalidIndex
}

// Increment 引用计数加一
func (st *SlotTable) Increment(idx int) error {
	if idx < 0 || idx >= MaxFrameBufCount {
		return fmt.Errorf("increment slot %d: %w", idx, ErrSlotIndex)
	}
	st.FrameInfo[idx].RefCount++
	return nil
}

// Decrement 引用计数减一，为 0 时清空槽内容；不会小于 0
func (st *SlotTable) Decrement(idx int) error {
	if idx < 0 || idx >= MaxFrameBufCount {
		return fmt.Errorf("decrement slot %d: %w", idx, ErrSlotIndex)
	}

	fi := &st.FrameInfo[idx]
	fi.RefCount--
	if fi.RefCount < 0 {
		fi.RefCount = 0
		return fmt.Errorf("decrement slot %d: %w", idx, ErrRefCountUnderflow)
	}
	if fi.RefCount == 0 {
		*fi = FrameInfo{}
	}
	return nil
}

// UpdateReferenceMap 按 refresh 位图更新参考帧映射：
// 先减旧槽再指向并增加新槽，最后释放当前帧自身的临时引用。
// 返回过程中遇到的第一个计数错误，更新本身总是完整执行
func (st *SlotTable) UpdateReferenceMap(refresh uint8, slot int) (err error) {
	keep := func(e error) {
		if err == nil {
			err = e
		}
	}

	mask := refresh
	for i := 0; mask != 0 && i < obu.TotalRefsPerFrame; i++ {
		if mask&1 != 0 {
			if st.RefFrameMap[i] != InvalidIndex {
				keep(st.Decrement(st.RefFrameMap[i]))
			}
			st.RefFrameMap[i] = slot
			keep(st.Increment(slot))
		}
		mask >>= 1
	}

	keep(st.Decrement(slot))
	return
}

// Setup 填写当前帧所在槽的帧信息
func (st *SlotTable) Setup(slot int, uh *UncompressedHeader) {
	fi := &st.FrameInfo[slot]
	fi.FrameType = uh.FrameType
	fi.FrameIsIntra = uh.FrameType.IsIntra()
	fi.OrderHint = uh.OrderHint
	fi.UpscaledWidth = uh.UpscaledWidth
	fi.PicPitch = 0
	fi.FrameWidth = uh.FrameWidth
	fi.FrameHeight = uh.FrameHeight
	fi.MiCols = MiCols(uh.FrameWidth)
	fi.MiRows = MiRows(uh.FrameHeight)
}

// FindTimestamp 按时间戳线性查找槽；找不到返回 InvalidIndex
func (st *SlotTable) FindTimestamp(ts uint64) int {
	for i, t := range st.Timestamp {
		if t == ts {
			return i
		}
	}
	return InvalidIndex
}

// RefCounts 各槽的引用计数
func (st *SlotTable) RefCounts() (counts [MaxFrameBufCount]int32) {
	for i := range st.FrameInfo {
		counts[i] = st.FrameInfo[i].RefCount
	}
	return
}

// MiCols 以 4 像素为单位的 mode info 列数，先按 8 像素对齐
func MiCols(width uint32) uint32 { return ((width + 7) >> 3) << 1 }

// MiRows 以 4 像素为单位的 mode info 行数，先按 8 像素对齐
func MiRows(height uint32) uint32 { return ((height + 7) >> 3) << 1 }
