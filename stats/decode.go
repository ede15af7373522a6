// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"sync/atomic"
)

// Counter 解码计数项
type Counter int

// 计数项
const (
	CounterFrames       Counter = iota // 提交的帧
	CounterDecoded                     // CORE 成功完成的帧
	CounterDropped                     // 失败的帧
	CounterLatRetries                  // LAT 输出满后的重试次数
	CounterLatTimeouts                 // LAT 超时
	CounterCoreTimeouts                // CORE 超时
	CounterNoMemory                    // UBE 耗尽或分配失败
	CounterInvalid                     // 输入非法
	CounterCoreErrors                  // CORE 阶段错误
	CounterReallocs                    // 工作缓冲重新分配
	CounterInBytes                     // 输入码流字节
	CounterOutBytes                    // LAT 输出字节
	counterCount
)

// DecodeSample 解码统计采样
type DecodeSample struct {
	Frames       int64 `json:"frames"`
	Decoded      int64 `json:"decoded"`
	Dropped      int64 `json:"dropped"`
	LatRetries   int64 `json:"lat_retries"`
	LatTimeouts  int64 `json:"lat_timeouts"`
	CoreTimeouts int64 `json:"core_timeouts"`
	NoMemory     int64 `json:"no_memory"`
	Invalid      int64 `json:"invalid"`
	CoreErrors   int64 `json:"core_errors"`
	Reallocs     int64 `json:"reallocs"`
	InBytes      int64 `json:"inbytes"`
	OutBytes     int64 `json:"outbytes"`
}

// Add 采样累加
func (ds *DecodeSample) Add(o DecodeSample) {
	ds.Frames += o.Frames
	ds.Decoded += o.Decoded
	ds.Dropped += o.Dropped
	ds.LatRetries += o.LatRetries
	ds.LatTimeouts += o.LatTimeouts
	ds.CoreTimeouts += o.CoreTimeouts
	ds.NoMemory += o.NoMemory
	ds.Invalid += o.Invalid
	ds.CoreErrors += o.CoreErrors
	ds.Reallocs += o.Reallocs
	ds.InBytes += o.InBytes
	ds.OutBytes += o.OutBytes
}

// Decode 解码统计接口
type Decode interface {
	Add(c Counter, n int64)  // 增加计数
	GetSample() DecodeSample // 获取当前时点采样
}

// 全局变量
var (
	Decodes = NewDecode() // 所有解码实例的汇总
)

type counters [counterCount]int64

func (cs *counters) add(c Counter, n int64) {
	if c < 0 || c >= counterCount {
		return
	}
	atomic.AddInt64(&cs[c], n)
}

func (cs *counters) sample() DecodeSample {
	load := func(c Counter) int64 { return atomic.LoadInt64(&cs[c]) }
	return DecodeSample{
		Frames:       load(CounterFrames),
		Decoded:      load(CounterDecoded),
		Dropped:      load(CounterDropped),
		LatRetries:   load(CounterLatRetries),
		LatTimeouts:  load(CounterLatTimeouts),
		CoreTimeouts: load(CounterCoreTimeouts),
		NoMemory:     load(CounterNoMemory),
		Invalid:      load(CounterInvalid),
		CoreErrors:   load(CounterCoreErrors),
		Reallocs:     load(CounterReallocs),
		InBytes:      load(CounterInBytes),
		OutBytes:     load(CounterOutBytes),
	}
}

type decode struct {
	cs counters
}

// NewDecode 创建解码统计
func NewDecode() Decode {
	return &decode{}
}

func (d *decode) Add(c Counter, n int64) {
	d.cs.add(c, n)
}

func (d *decode) GetSample() DecodeSample {
	return d.cs.sample()
}

type childDecode struct {
	parent Decode
	cs     counters
}

// NewChildDecode 创建子解码计数，它会把自己的计数Add到parent上
func NewChildDecode(parent Decode) Decode {
	return &childDecode{
		parent: parent,
	}
}

func (d *childDecode) Add(c Counter, n int64) {
	d.cs.add(c, n)
	d.parent.Add(c, n)
}

func (d *childDecode) GetSample() DecodeSample {
	return d.cs.sample()
}
