// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vdec

import (
	"fmt"
	"sync"
)

// FrameBuffer 解码输出的图像缓冲
type FrameBuffer struct {
	Index     int
	Timestamp uint64 // 从源码流复制，供后续帧按时间戳引用
	Y         Mem
	C         Mem // 单平面格式时为空，色度地址由 Y 推算
	Err       error
	used      bool
}

// CaptureQueue 输出队列，缓冲的排队与出队机制不属于本层
type CaptureQueue interface {
	// Next 取下一个可写的输出缓冲
	Next() (*FrameBuffer, error)
	// FindTimestamp 按时间戳线性查找缓冲，找不到返回 nil
	FindTimestamp(ts uint64) *FrameBuffer
	// Done 缓冲解码结束，err 非空表示该帧出错
	Done(fb *FrameBuffer, err error)
	// Planes 每个缓冲的平面数
	Planes() int
}

// DoneFunc 输出缓冲完成回调
type DoneFunc func(fb *FrameBuffer, err error)

// BufferQueue 内存中的输出队列，空闲缓冲按先进先出复用
type BufferQueue struct {
	l      sync.Mutex
	alloc  Allocator
	planes int
	bufs   []*FrameBuffer
	free   []int
	onDone DoneFunc
}

var _ CaptureQueue = (*BufferQueue)(nil)

// NewBufferQueue 创建 count 个缓冲，sizes 为各平面的字节数
func NewBufferQueue(alloc Allocator, count, planes int, sizes [2]uint32, onDone DoneFunc) (*BufferQueue, error) {
	if count <= 0 || planes < 1 || planes > 2 {
		return nil, fmt.Errorf("buffer queue count %d planes %d: %w", count, planes, ErrInvalidParam)
	}

	q := &BufferQueue{
		alloc:  alloc,
		planes: planes,
		onDone: onDone,
	}

	for i := 0; i < count; i++ {
		fb := &FrameBuffer{Index: i}
		var err error
		size := uint64(sizes[0])
		if planes == 1 {
			size += uint64(sizes[1])
		}
		if fb.Y, err = alloc.Alloc(size); err != nil {
			q.Free()
			return nil, err
		}
		if planes == 2 {
			if fb.C, err = alloc.Alloc(uint64(sizes[1])); err != nil {
				alloc.Free(&fb.Y)
				q.Free()
				return nil, err
			}
		}
		q.bufs = append(q.bufs, fb)
		q.free = append(q.free, i)
	}
	return q, nil
}

// Planes 每个缓冲的平面数
func (q *BufferQueue) Planes() int { return q.planes }

// Next 取最早空闲的缓冲
func (q *BufferQueue) Next() (*FrameBuffer, error) {
	q.l.Lock()
	defer q.l.Unlock()

	if len(q.free) == 0 {
		return nil, fmt.Errorf("no free capture buffer: %w", ErrBusy)
	}
	idx := q.free[0]
	q.free = q.free[1:]
	fb := q.bufs[idx]
	fb.Err = nil
	fb.used = true
	return fb, nil
}

// FindTimestamp 按时间戳线性查找
func (q *BufferQueue) FindTimestamp(ts uint64) *FrameBuffer {
	q.l.Lock()
	defer q.l.Unlock()

	for _, fb := range q.bufs {
		if fb.used && fb.Timestamp == ts {
			return fb
		}
	}
	return nil
}

// Done 标记缓冲完成并回调
func (q *BufferQueue) Done(fb *FrameBuffer, err error) {
	q.l.Lock()
	fb.Err = err
	onDone := q.onDone
	q.l.Unlock()

	if onDone != nil {
		onDone(fb, err)
	}
}

// Requeue 缓冲重新入队；内容保留，直到被再次取出前仍可按时间戳查找
func (q *BufferQueue) Requeue(fb *FrameBuffer) {
	q.l.Lock()
	defer q.l.Unlock()

	for _, idx := range q.free {
		if idx == fb.Index {
			return
		}
	}
	q.free = append(q.free, fb.Index)
}

// Len 空闲缓冲数
func (q *BufferQueue) Len() int {
	q.l.Lock()
	defer q.l.Unlock()
	return len(q.free)
}

// Free 释放全部缓冲
func (q *BufferQueue) Free() {
	q.l.Lock()
	defer q.l.Unlock()

	for _, fb := range q.bufs {
		q.alloc.Free(&fb.Y)
		q.alloc.Free(&fb.C)
	}
	q.bufs = nil
	q.free = nil
}
