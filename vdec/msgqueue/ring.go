// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgqueue

import (
	"fmt"
	"sync"

	"github.com/cnotch/av1vdec/vdec"
)

// Ring LAT 与 CORE 之间的 UBE 环形缓冲。
// 读写指针是单调递增的逻辑位置，设备偏移为 pos % capacity
type Ring struct {
	l     sync.Mutex
	mem   vdec.Mem
	w     uint64
	r     uint64
	moved chan struct{} // 读指针前进时关闭并替换
}

// NewRing 在 mem 上创建环形缓冲
func NewRing(mem vdec.Mem) *Ring {
	return &Ring{mem: mem, moved: make(chan struct{})}
}

// Mem 底层缓冲
func (rb *Ring) Mem() vdec.Mem { return rb.mem }

// Capacity 容量
func (rb *Ring) Capacity() uint64 { return rb.mem.Size }

// Span 当前可供 LAT 写入的区域 [w, r+capacity)
func (rb *Ring) Span() vdec.Span {
	rb.l.Lock()
	defer rb.l.Unlock()
	return vdec.Span{Start: rb.w, End: rb.r + rb.mem.Size}
}

// Exhausted span 是否已覆盖整个缓冲；固件在这样的区域内仍然写满说明缓冲无法满足该帧
func (rb *Ring) Exhausted(span vdec.Span) bool {
	return span.Len() >= rb.mem.Size
}

// Offset 逻辑位置对应的设备偏移
func (rb *Ring) Offset(pos uint64) uint64 {
	if rb.mem.Size == 0 {
		return 0
	}
	return pos % rb.mem.Size
}

// AdvanceWrite LAT 成功后把写指针移到 end
func (rb *Ring) AdvanceWrite(end uint64) error {
	rb.l.Lock()
	defer rb.l.Unlock()

	if end < rb.w || end > rb.r+rb.mem.Size {
		return fmt.Errorf("ube write pointer %d outside [%d, %d]: %w",
			end, rb.w, rb.r+rb.mem.Size, vdec.ErrInvalidParam)
	}
	rb.w = end
	return nil
}

// AdvanceRead CORE 结束后把读指针移到 end；读指针不会后退，也不会越过写指针
func (rb *Ring) AdvanceRead(end uint64) {
	rb.l.Lock()
	defer rb.l.Unlock()

	if end > rb.w {
		end = rb.w
	}
	if end > rb.r {
		rb.r = end
		close(rb.moved)
		rb.moved = make(chan struct{})
	}
}

// ReadMoved 返回在读指针下一次前进时关闭的通道
func (rb *Ring) ReadMoved() <-chan struct{} {
	rb.l.Lock()
	defer rb.l.Unlock()
	return rb.moved
}

// Pointers 当前的写指针与读指针
func (rb *Ring) Pointers() (w, r uint64) {
	rb.l.Lock()
	defer rb.l.Unlock()
	return rb.w, rb.r
}
