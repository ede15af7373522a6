// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vdec

import (
	"fmt"
	"sync"
)

// Mem 设备可访问的内存，Data 为其 CPU 映射
type Mem struct {
	Addr uint64 // 设备地址
	Size uint64
	Data []byte
}

// Valid 是否已分配
func (m *Mem) Valid() bool { return m.Data != nil }

// Zero 清零 CPU 映射
func (m *Mem) Zero() {
	for i := range m.Data {
		m.Data[i] = 0
	}
}

// Allocator 工作内存分配器
type Allocator interface {
	Alloc(size uint64) (Mem, error)
	Free(m *Mem)
}

const heapPageSize = 4096

// HeapAllocator 基于堆的分配器，设备地址单调递增并按页对齐
type HeapAllocator struct {
	l     sync.Mutex
	next  uint64
	inuse uint64 // 已分配的字节数
	count int
	limit uint64 // 为 0 表示不限制
}

// NewHeapAllocator 创建分配器；limit 为可分配的总字节数，0 不限制
func NewHeapAllocator(limit uint64) *HeapAllocator {
	return &HeapAllocator{
		next:  0x40000000,
		limit: limit,
	}
}

// Alloc 分配 size 字节
func (a *HeapAllocator) Alloc(size uint64) (m Mem, err error) {
	if size == 0 {
		return m, fmt.Errorf("alloc zero bytes: %w", ErrInvalidParam)
	}

	a.l.Lock()
	defer a.l.Unlock()

	if a.limit > 0 && a.inuse+size > a.limit {
		return m, fmt.Errorf("alloc %d bytes, %d in use: %w", size, a.inuse, ErrNoMemory)
	}

	m.Addr = a.next
	m.Size = size
	m.Data = make([]byte, size)
	a.next += (size + heapPageSize - 1) &^ (heapPageSize - 1)
	a.inuse += size
	a.count++
	return m, nil
}

// Free 释放内存并清空 m
func (a *HeapAllocator) Free(m *Mem) {
	if m == nil || m.Data == nil {
		return
	}

	a.l.Lock()
	a.inuse -= m.Size
	a.count--
	a.l.Unlock()

	*m = Mem{}
}

// InUse 已分配字节数和块数
func (a *HeapAllocator) InUse() (bytes uint64, count int) {
	a.l.Lock()
	defer a.l.Unlock()
	return a.inuse, a.count
}
