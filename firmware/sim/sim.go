// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sim 内存中的协处理器模拟器，按脚本返回各阶段的执行结果。
package sim

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	"github.com/cnotch/av1vdec/utils/bits"
	"github.com/cnotch/av1vdec/vdec"
)

// Outcome 一次阶段执行的结果
type Outcome int

// 执行结果
const (
	Success       Outcome = iota // 正常完成
	FullRetry                    // 本次输出缓冲满，可以重试
	FullExhausted                // 整个 UBE 都不足以容纳本帧
	Hang                         // 不发出完成信号，直到驱动标记超时
	Error                        // 固件报告解码错误
)

var outcomeNames = [...]string{
	Success:       "SUCCESS",
	FullRetry:     "FULL_RETRY",
	FullExhausted: "FULL_EXHAUSTED",
	Hang:          "HANG",
	Error:         "ERROR",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "UNKNOWN"
	}
	return outcomeNames[o]
}

// ErrNotInit 实例没有初始化
var ErrNotInit = errors.New("sim: vpu not initialized")

// 默认固件参数
const (
	DefaultArchitecture = 0x8195
	DefaultTableSize    = 4096
)

type stage struct {
	vsi      []byte
	hdr      vdec.Header
	running  bool
	done     chan struct{}
	outcomes []Outcome
	delay    time.Duration
	outSize  uint64 // 0 表示与输入码流等长
	starts   int
}

// VPU 模拟的协处理器，可并发使用
type VPU struct {
	l       sync.Mutex
	arch    uint32
	vsiSize int
	stages  [2]stage
	inited  bool
	resets  int
	cdf, iq []byte
}

var _ vdec.VPU = (*VPU)(nil)

// New 创建模拟器；vsiSize 为初始化时报告的 vsi 字节数
func New(vsiSize int) *VPU {
	v := &VPU{
		arch:    DefaultArchitecture,
		vsiSize: vsiSize,
		cdf:     make([]byte, DefaultTableSize),
		iq:      make([]byte, DefaultTableSize),
	}
	for i := range v.cdf {
		v.cdf[i] = byte(i)
		v.iq[i] = byte(i >> 4)
	}
	return v
}

// Script 为阶段追加后续 Start 的执行结果，用完后为 Success
func (v *VPU) Script(s vdec.Stage, outcomes ...Outcome) {
	v.l.Lock()
	defer v.l.Unlock()
	st := &v.stages[s]
	st.outcomes = append(st.outcomes, outcomes...)
}

// SetDelay 阶段完成前的延迟
func (v *VPU) SetDelay(s vdec.Stage, d time.Duration) {
	v.l.Lock()
	defer v.l.Unlock()
	v.stages[s].delay = d
}

// SetOutputSize LAT 每帧输出的字节数，0 表示与输入码流等长
func (v *VPU) SetOutputSize(n uint64) {
	v.l.Lock()
	defer v.l.Unlock()
	v.stages[vdec.StageLat].outSize = n
}

// Starts 阶段被启动的次数
func (v *VPU) Starts(s vdec.Stage) int {
	v.l.Lock()
	defer v.l.Unlock()
	return v.stages[s].starts
}

// Resets 硬件复位次数
func (v *VPU) Resets() int {
	v.l.Lock()
	defer v.l.Unlock()
	return v.resets
}

// LastVSI 阶段最近一次写入的 vsi
func (v *VPU) LastVSI(s vdec.Stage) []byte {
	v.l.Lock()
	defer v.l.Unlock()
	return append([]byte(nil), v.stages[s].vsi...)
}

// Init 只支持 AV1
func (v *VPU) Init(codec vdec.Codec) (*vdec.InitInfo, error) {
	if codec != vdec.CodecAV1 {
		return nil, fmt.Errorf("sim: codec %s: %w", codec, vdec.ErrUnsupported)
	}

	v.l.Lock()
	defer v.l.Unlock()
	v.inited = true
	return &vdec.InitInfo{
		Architecture: v.arch,
		VsiSize:      v.vsiSize,
		CdfTable:     append([]byte(nil), v.cdf...),
		IqTable:      append([]byte(nil), v.iq...),
	}, nil
}

// WriteVSI 保存参数块并解析公共头部
func (v *VPU) WriteVSI(s vdec.Stage, vsi []byte) error {
	v.l.Lock()
	defer v.l.Unlock()
	if !v.inited {
		return ErrNotInit
	}

	st := &v.stages[s]
	if err := st.hdr.Unmarshal(vsi); err != nil {
		return err
	}
	st.vsi = append(st.vsi[:0], vsi...)
	return nil
}

// Start 按脚本在后台完成该阶段
func (v *VPU) Start(s vdec.Stage) error {
	v.l.Lock()
	defer v.l.Unlock()
	if !v.inited {
		return ErrNotInit
	}

	st := &v.stages[s]
	if st.running {
		return fmt.Errorf("sim: %s already running: %w", s, vdec.ErrBusy)
	}
	outcome := Success
	if len(st.outcomes) > 0 {
		outcome = st.outcomes[0]
		st.outcomes = st.outcomes[1:]
	}
	st.running = true
	st.starts++
	done := make(chan struct{})
	st.done = done

	if outcome == Hang {
		return nil
	}
	hdr := v.execute(s, outcome)
	delay := st.delay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		v.l.Lock()
		if st.done == done {
			st.hdr = hdr
			close(done)
		}
		v.l.Unlock()
	}()
	return nil
}

// execute 计算阶段结束时固件回写的头部
func (v *VPU) execute(s vdec.Stage, outcome Outcome) vdec.Header {
	st := &v.stages[s]
	hdr := st.hdr
	hdr.State = vdec.State{}

	switch outcome {
	case FullRetry:
		hdr.State.Full = 1
		hdr.Trans.End = hdr.Trans.Start
		return hdr
	case FullExhausted:
		hdr.State.Full = 1
		hdr.Trans.End = hdr.Trans.Start + hdr.Ube.Size
		return hdr
	case Error:
		hdr.State.Err = -1
		return hdr
	}

	if s == vdec.StageLat {
		need := st.outSize
		if need == 0 {
			need = bitstreamSize(st.vsi)
		}
		if need > hdr.Trans.Len() {
			// 回写提供的区域，驱动据此判断是否还有空间
			hdr.State.Full = 1
			return hdr
		}
		hdr.Trans.End = hdr.Trans.Start + need
		hdr.State.OutSize = uint32(need)
	}

	sum := crc32.ChecksumIEEE(st.vsi[vdec.HeaderSize:])
	for i := range hdr.State.Crc {
		hdr.State.Crc[i] = sum + uint32(i)
	}
	return hdr
}

// bitstreamSize vsi 中紧跟头部的码流缓冲大小
func bitstreamSize(vsi []byte) uint64 {
	if len(vsi) < vdec.HeaderSize+16 {
		return 0
	}
	r := bits.NewReader(vsi[vdec.HeaderSize:])
	r.Skip(8)
	return r.ReadUint64()
}

// Wait 等待完成信号
func (v *VPU) Wait(ctx context.Context, s vdec.Stage, timeout time.Duration) error {
	v.l.Lock()
	done := v.stages[s].done
	v.l.Unlock()
	if done == nil {
		return fmt.Errorf("sim: %s not started: %w", s, vdec.ErrInvalidParam)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("sim: %s after %v: %w", s, timeout, vdec.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetTimeout 固件看到超时标记后中止并回写状态
func (v *VPU) SetTimeout(s vdec.Stage) error {
	v.l.Lock()
	defer v.l.Unlock()

	st := &v.stages[s]
	if !st.running {
		return nil
	}
	st.hdr.State = vdec.State{Timeout: 1}
	if st.done != nil {
		select {
		case <-st.done:
		default:
			close(st.done)
		}
	}
	st.done = nil
	return nil
}

// ReadVSI 读回头部
func (v *VPU) ReadVSI(s vdec.Stage) ([]byte, error) {
	v.l.Lock()
	defer v.l.Unlock()
	if !v.inited {
		return nil, ErrNotInit
	}
	return v.stages[s].hdr.Marshal(), nil
}

// End 结束阶段
func (v *VPU) End(s vdec.Stage) error {
	v.l.Lock()
	defer v.l.Unlock()
	v.stages[s].running = false
	return nil
}

// Reset 复位
func (v *VPU) Reset() error {
	v.l.Lock()
	defer v.l.Unlock()
	v.resets++
	return nil
}

// FrameBufferSizes 8 位 4:2:0 的亮度与色度大小
func (v *VPU) FrameBufferSizes(width, height uint32) ([2]uint32, error) {
	luma := width * height
	return [2]uint32{luma, luma / 2}, nil
}

// Deinit 释放实例
func (v *VPU) Deinit() error {
	v.l.Lock()
	defer v.l.Unlock()
	if !v.inited {
		return ErrNotInit
	}
	v.inited = false
	return nil
}
