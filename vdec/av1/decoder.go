// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	obu "github.com/cnotch/av1vdec/av/codec/av1"
	"github.com/cnotch/av1vdec/stats"
	"github.com/cnotch/av1vdec/vdec"
	"github.com/cnotch/av1vdec/vdec/msgqueue"
	"github.com/cnotch/xlog"
)

var instanceSeq int64

// frameContext 一帧的私有上下文，随帧上下文缓冲复用。
// 入队 CORE 之后 vsi 只读；result 和 err 在 latDone 关闭后才可读
type frameContext struct {
	seq     uint64
	ts      uint64
	slot    int
	intra   bool
	width   uint32
	height  uint32
	refTs   [obu.RefsPerFrame]uint64
	tileLen uint64
	vsi     VSI
	trans   vdec.Span // 竞速模式下首次 LAT 提供的区域
	retries int32
	result  vdec.Header
	err     error
	latDone chan struct{}
}

func (pfc *frameContext) reset(seq uint64, bs *vdec.Bitstream) {
	*pfc = frameContext{
		seq:     seq,
		ts:      bs.Timestamp,
		slot:    InvalidIndex,
		latDone: make(chan struct{}),
	}
}

func contextOf(lb *msgqueue.LatBuf) *frameContext {
	pfc, _ := lb.Private.(*frameContext)
	if pfc == nil {
		pfc = new(frameContext)
		lb.Private = pfc
	}
	return pfc
}

// Status 解码实例的 AV1 状态
type Status struct {
	Seq       uint64                  `json:"seq"`
	Tier      Tier                    `json:"tier"`
	Allocs    int                     `json:"allocs"`
	Reallocs  int                     `json:"reallocs"`
	FrameType obu.FrameType           `json:"frame_type"`
	RefCounts [MaxFrameBufCount]int32 `json:"ref_counts"`
	Slots     SlotTable               `json:"slots"`
	Stats     stats.DecodeSample      `json:"stats"`
}

// Decoder AV1 两阶段（LAT/CORE）无状态解码器
type Decoder struct {
	id      int64
	vpu     vdec.VPU
	alloc   vdec.Allocator
	capture vdec.CaptureQueue
	opts    vdec.Options
	logger  *xlog.Logger
	stats   stats.Decode

	cdfTable vdec.Mem
	iqTable  vdec.Mem
	wb       *WorkBuffers // 只在持有 dl 时访问
	mq       *msgqueue.Queue

	dl     sync.Mutex // 串行化 LAT 阶段与 flush
	seq    uint64
	closed int32

	l         sync.RWMutex // 保护以下字段，写者总是同时持有 dl
	slots     SlotTable
	width     uint32
	height    uint32
	frameType obu.FrameType
	tier      Tier
	allocs    int
	reallocs  int
}

var _ vdec.Decoder = (*Decoder)(nil)

// New 初始化固件实例、装载 CDF 与反量化表，并创建帧上下文队列
func New(vpu vdec.VPU, alloc vdec.Allocator, capture vdec.CaptureQueue, opts ...vdec.Option) (*Decoder, error) {
	if vpu == nil || alloc == nil || capture == nil {
		return nil, fmt.Errorf("av1: new decoder: %w", vdec.ErrInvalidParam)
	}

	o := vdec.NewOptions(opts...)
	d := &Decoder{
		id:      atomic.AddInt64(&instanceSeq, 1),
		vpu:     vpu,
		alloc:   alloc,
		capture: capture,
		opts:    o,
		stats:   o.Stats,
		slots:   NewSlotTable(),
		wb:      NewWorkBuffers(alloc),
	}
	d.logger = o.Logger.With(xlog.Fields(
		xlog.F("codec", vdec.CodecAV1.String()),
		xlog.F("inst", d.id)))

	info, err := vpu.Init(vdec.CodecAV1)
	if err != nil {
		return nil, fmt.Errorf("av1: vpu init: %w", err)
	}
	if info.VsiSize != VsiSize {
		d.logger.Errorf("vsi size mismatch: driver %d bytes, firmware %d bytes", VsiSize, info.VsiSize)
	}

	if err = d.loadTable(&d.cdfTable, info.CdfTable, "cdf"); err == nil {
		err = d.loadTable(&d.iqTable, info.IqTable, "iq")
	}
	if err == nil {
		d.mq, err = msgqueue.New(alloc, msgqueue.Config{
			Depth:   msgqueue.DefaultDepth,
			UbeSize: o.UbeSize,
			Core:    d.decodeCore,
			Logger:  d.logger,
		})
	}
	if err != nil {
		d.freeTables()
		if e := vpu.Deinit(); e != nil {
			d.logger.Warnf("vpu deinit: %v", e)
		}
		return nil, err
	}

	stats.Decoders.Add()
	d.logger.Infof("decoder created, arch %#x, vsi %d bytes, racing %v",
		info.Architecture, VsiSize, o.InnerRacing)
	return d, nil
}

func (d *Decoder) loadTable(dst *vdec.Mem, src []byte, name string) error {
	if len(src) == 0 {
		return fmt.Errorf("av1: empty %s table: %w", name, vdec.ErrInvalidParam)
	}
	m, err := d.alloc.Alloc(uint64(len(src)))
	if err != nil {
		return fmt.Errorf("av1: %s table: %w", name, err)
	}
	copy(m.Data, src)
	*dst = m
	return nil
}

func (d *Decoder) freeTables() {
	d.alloc.Free(&d.cdfTable)
	d.alloc.Free(&d.iqTable)
}

// Decode 解码一帧；bs 为 nil 时执行 flush。
// LAT 完成（或失败）后返回，CORE 在后台完成并通过输出队列通知
func (d *Decoder) Decode(ctx context.Context, bs *vdec.Bitstream) error {
	if atomic.LoadInt32(&d.closed) != 0 {
		return vdec.ErrClosed
	}

	d.dl.Lock()
	defer d.dl.Unlock()

	if bs == nil {
		return d.flush(ctx)
	}

	d.stats.Add(stats.CounterFrames, 1)
	d.stats.Add(stats.CounterInBytes, int64(bs.Size))

	ctrls, ok := bs.Controls.(*obu.Controls)
	if !ok || ctrls == nil {
		d.stats.Add(stats.CounterInvalid, 1)
		d.stats.Add(stats.CounterDropped, 1)
		return fmt.Errorf("av1: controls %T: %w", bs.Controls, vdec.ErrInvalidParam)
	}

	lb, err := d.mq.Dequeue(ctx, d.opts.LatBufWait)
	if err != nil {
		d.stats.Add(stats.CounterDropped, 1)
		return err
	}

	pfc := contextOf(lb)
	pfc.reset(atomic.AddUint64(&d.seq, 1), bs)
	d.emit(pfc, vdec.FrameLatSetup, nil, nil)

	slots, err := d.setupLat(ctx, lb, pfc, bs, ctrls)
	if err != nil {
		d.mq.Release(lb)
		d.countError(err)
		d.stats.Add(stats.CounterDropped, 1)
		d.logger.Errorf("frame %d setup: %v", pfc.seq, err)
		d.emit(pfc, vdec.FrameIdle, nil, err)
		return err
	}
	return d.decodeLat(ctx, lb, pfc, &slots)
}

func (d *Decoder) countError(err error) {
	switch {
	case errors.Is(err, vdec.ErrInvalidParam), errors.Is(err, vdec.ErrUnsupported):
		d.stats.Add(stats.CounterInvalid, 1)
	case errors.Is(err, vdec.ErrNoMemory):
		d.stats.Add(stats.CounterNoMemory, 1)
	}
}

// flush 释放参考帧映射持有的槽，等待在途的 CORE 全部完成后复位硬件
func (d *Decoder) flush(ctx context.Context) error {
	d.l.Lock()
	for _, idx := range d.slots.RefFrameMap {
		if idx == InvalidIndex {
			continue
		}
		if err := d.slots.Decrement(idx); err != nil {
			d.logger.Warnf("flush: %v", err)
		}
	}
	d.slots.ResetReferenceMap()
	d.l.Unlock()

	if err := d.mq.WaitIdle(ctx); err != nil {
		return fmt.Errorf("av1: flush: %w", err)
	}
	if err := d.vpu.Reset(); err != nil {
		return fmt.Errorf("av1: flush: vpu reset: %w", err)
	}
	d.logger.Info("flushed")
	return nil
}

// PicInfo 最近一次 LAT 成功的帧尺寸，缓冲尺寸按 64 对齐
func (d *Decoder) PicInfo() (vdec.PicInfo, error) {
	d.l.RLock()
	w, h := d.width, d.height
	d.l.RUnlock()

	info := vdec.PicInfo{
		Width:  w,
		Height: h,
		BufW:   vdec.Align(w, 64),
		BufH:   vdec.Align(h, 64),
	}
	sizes, err := d.vpu.FrameBufferSizes(info.BufW, info.BufH)
	if err != nil {
		return info, fmt.Errorf("av1: pic info: %w", err)
	}
	info.FbSize = sizes
	return info, nil
}

// DpbSize 解码图像缓冲的数量
func (d *Decoder) DpbSize() int { return MaxFrameBufCount }

// CropInfo 裁剪区域为整帧
func (d *Decoder) CropInfo() vdec.Rect {
	d.l.RLock()
	defer d.l.RUnlock()
	return vdec.Rect{Width: d.width, Height: d.height}
}

// Slots 参考槽表的快照
func (d *Decoder) Slots() SlotTable {
	d.l.RLock()
	defer d.l.RUnlock()
	return d.slots
}

// Status 实例状态，Detail 为 *Status
func (d *Decoder) Status() vdec.Status {
	pic, err := d.PicInfo()
	if err != nil {
		d.logger.Warnf("status: %v", err)
	}

	d.l.RLock()
	detail := &Status{
		Seq:       atomic.LoadUint64(&d.seq),
		Tier:      d.tier,
		Allocs:    d.allocs,
		Reallocs:  d.reallocs,
		FrameType: d.frameType,
		RefCounts: d.slots.RefCounts(),
		Slots:     d.slots,
		Stats:     d.stats.GetSample(),
	}
	crop := vdec.Rect{Width: d.width, Height: d.height}
	d.l.RUnlock()

	ring := d.mq.Ring()
	w, r := ring.Pointers()
	return vdec.Status{
		Codec:    vdec.CodecAV1,
		Instance: d.id,
		Pic:      pic,
		Crop:     crop,
		Dpb:      MaxFrameBufCount,
		LatBufs:  d.mq.Depth(),
		FreeBufs: d.mq.Free(),
		Ube:      vdec.UbeStatus{Capacity: ring.Capacity(), Write: w, Read: r},
		Detail:   detail,
	}
}

// Close 等待在途帧完成后释放全部资源
func (d *Decoder) Close() error {
	if !atomic.CompareAndSwapInt32(&d.closed, 0, 1) {
		return nil
	}

	d.dl.Lock()
	defer d.dl.Unlock()

	wait := d.opts.LatTimeout + time.Duration(d.mq.Depth())*d.opts.CoreTimeout
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	if err := d.mq.WaitIdle(ctx); err != nil {
		d.logger.Errorf("close: wait in-flight frames: %v", err)
	}
	cancel()

	d.mq.Close()
	d.wb.Free()
	d.freeTables()
	err := d.vpu.Deinit()
	stats.Decoders.Release()
	d.logger.Info("decoder closed")
	if err != nil {
		return fmt.Errorf("av1: vpu deinit: %w", err)
	}
	return nil
}

func (d *Decoder) emit(pfc *frameContext, state vdec.FrameState, crc []uint32, err error) {
	if d.opts.Observer == nil {
		return
	}
	e := vdec.Event{
		Time:      time.Now(),
		Codec:     vdec.CodecAV1,
		Instance:  d.id,
		Seq:       pfc.seq,
		Timestamp: pfc.ts,
		State:     state,
		Slot:      pfc.slot,
		Retries:   int(atomic.LoadInt32(&pfc.retries)),
		Crc:       crc,
	}
	if err != nil {
		e.Error = err.Error()
	}
	d.opts.Observer(e)
}
