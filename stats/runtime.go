// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"runtime"
	"time"

	"github.com/kelindar/process"
)

// 创建时间
var (
	StartingTime = time.Now()
)

// Proc 进程信息统计
type Proc struct {
	CPU    float64 `json:"cpu"`    // cpu使用情况
	Priv   int32   `json:"priv"`   // 私有内存 KB
	Virt   int32   `json:"virt"`   // 虚拟内存 KB
	Uptime int32   `json:"uptime"` // 运行时间 S
}

// Memory 堆内存信息，KB
type Memory struct {
	HeapInuse int32 `json:"heap_inuse"`
	HeapSys   int32 `json:"heap_sys"`
	HeapAlloc int32 `json:"heap_alloc"`
	Sys       int32 `json:"sys"`
	GCSys     int32 `json:"gc_sys"`
	NumGC     int32 `json:"num_gc"`
}

// Runtime 运行时及解码汇总
type Runtime struct {
	Proc       Proc         `json:"proc"`
	Memory     Memory       `json:"memory"`
	Goroutines int32        `json:"goroutines"`
	Decoders   GaugeSample  `json:"decoders"`
	Events     GaugeSample  `json:"subscribers"`
	Decodes    DecodeSample `json:"decodes"`
}

// MeasureProc 获取进程的 CPU 与内存占用
func MeasureProc() (p Proc) {
	defer func() { recover() }()

	p.Uptime = int32(time.Since(StartingTime).Seconds())
	var memoryPriv, memoryVirtual int64
	process.ProcUsage(&p.CPU, &memoryPriv, &memoryVirtual)
	p.Priv = toKB(uint64(memoryPriv))
	p.Virt = toKB(uint64(memoryVirtual))
	return
}

// MeasureRuntime 获取运行时信息与全局解码统计
func MeasureRuntime() *Runtime {
	var memory runtime.MemStats
	runtime.ReadMemStats(&memory)

	return &Runtime{
		Proc: MeasureProc(),
		Memory: Memory{
			HeapInuse: toKB(memory.HeapInuse),
			HeapSys:   toKB(memory.HeapSys),
			HeapAlloc: toKB(memory.HeapAlloc),
			Sys:       toKB(memory.Sys),
			GCSys:     toKB(memory.GCSys),
			NumGC:     int32(memory.NumGC),
		},
		Goroutines: int32(runtime.NumGoroutine()),
		Decoders:   Decoders.GetSample(),
		Events:     Subscribers.GetSample(),
		Decodes:    Decodes.GetSample(),
	}
}

// Converts the memory in bytes to KBs, otherwise it would overflow our int32
func toKB(v uint64) int32 {
	return int32(v / 1024)
}
