// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	obu "github.com/cnotch/av1vdec/av/codec/av1"
	"github.com/cnotch/av1vdec/stats"
	"github.com/cnotch/av1vdec/vdec"
	"github.com/cnotch/av1vdec/vdec/msgqueue"
	"github.com/cnotch/xlog"
)

// setupLat 在槽表副本上准备一帧的 LAT 参数。
// 所有输入校验都在修改任何状态之前完成；失败时实例槽表保持不变
func (d *Decoder) setupLat(ctx context.Context, lb *msgqueue.LatBuf, pfc *frameContext, bs *vdec.Bitstream, ctrls *obu.Controls) (slots SlotTable, err error) {
	frame, err := Translate(ctrls)
	if err != nil {
		return
	}
	uh := &frame.UH
	tg, err := NewTileGroup(&uh.Tile, ctrls.TileGroups, ctrls.TileGroupEntries)
	if err != nil {
		return
	}
	tier, err := TierOf(uh.FrameWidth, uh.FrameHeight)
	if err != nil {
		return
	}
	frame.CurTs = bs.Timestamp

	slots = d.slots
	slot := slots.AcquireSlot(bs.Timestamp)
	if slot == InvalidIndex {
		d.logger.Warnf("frame %d: no free slot, reuse slot 0", pfc.seq)
		slot = 0
	}
	slots.Setup(slot, uh)
	setupRefs(frame, &slots, ctrls.Frame, d.logger)
	frame.PrevFbIdx = previousFrame(frame)

	if err = d.ensureWorkBuffers(ctx, uh, tier); err != nil {
		return
	}
	d.wb.ResetSegmentation(uh, slot)

	n, err := WriteRecords(d.wb.Tile.Data, tg.Records(uh, bs.Addr))
	if err != nil {
		return
	}
	if n > len(lb.Tile.Data) {
		err = fmt.Errorf("lat buffer %d tile: %w", lb.Index, vdec.ErrNoMemory)
		return
	}
	copy(lb.Tile.Data, d.wb.Tile.Data[:n])

	pfc.slot = slot
	pfc.intra = uh.FrameIsIntra
	pfc.width = uh.UpscaledWidth
	pfc.height = uh.FrameHeight
	pfc.refTs = ctrls.Frame.ReferenceFrameTs
	pfc.tileLen = uint64(n)

	vsi := &pfc.vsi
	vsi.Bs = bs.Mem
	for i := range vsi.WorkBuffer {
		vsi.WorkBuffer[i] = WorkBuffer{
			Mv:    d.wb.Mv[i],
			Cdf:   d.wb.Cdf[i],
			SegID: d.wb.Seg[i],
		}
	}
	vsi.CdfTable = d.cdfTable
	vsi.CdfTmp = d.wb.CdfTemp
	vsi.RdMv = lb.RdMv
	vsi.ErrMap = lb.ErrMap
	vsi.IqTable = d.iqTable
	vsi.Tile = vdec.Mem{Addr: d.wb.Tile.Addr, Size: uint64(n)}
	vsi.Slots = slots
	vsi.SlotID = slot
	vsi.Frame = *frame
	return
}

// ensureWorkBuffers 按帧尺寸档位分配工作缓冲。
// 换档会释放旧缓冲，必须先等在途的 CORE 全部完成
func (d *Decoder) ensureWorkBuffers(ctx context.Context, uh *UncompressedHeader, tier Tier) error {
	if tier == d.wb.Tier() {
		return nil
	}
	if err := d.waitCoreIdle(ctx); err != nil {
		return err
	}

	allocated, err := d.wb.EnsureCapacity(uh.FrameWidth, uh.FrameHeight)
	if !allocated && err == nil {
		return nil
	}

	allocs, reallocs := d.wb.Counts()
	d.l.Lock()
	prev := d.reallocs
	d.tier = d.wb.Tier()
	d.allocs, d.reallocs = allocs, reallocs
	d.l.Unlock()

	if err != nil {
		return err
	}
	if reallocs > prev {
		d.stats.Add(stats.CounterReallocs, int64(reallocs-prev))
	}
	d.logger.Infof("work buffers allocated for %s (%dx%d)", d.wb.Tier(), uh.FrameWidth, uh.FrameHeight)
	return nil
}

// waitCoreIdle 等待之前的帧全部完成 CORE；每帧最多等待一个 CORE 超时
func (d *Decoder) waitCoreIdle(ctx context.Context) error {
	n := d.mq.InFlight() - 1 // 不含当前帧
	if n <= 0 {
		return nil
	}

	d.logger.Infof("wait %d frames in core before work buffers change", n)
	ctx, cancel := context.WithTimeout(ctx, time.Duration(n)*d.opts.CoreTimeout)
	defer cancel()
	if err := d.mq.WaitCore(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("wait core idle: %w", vdec.ErrTimeout)
		}
		return err
	}
	return nil
}

// decodeLat 运行 LAT，输出缓冲满时在同一帧上下文上重试。
// 成功时提交槽表；失败的帧仍交给 CORE，由 CORE 归还输出缓冲
func (d *Decoder) decodeLat(ctx context.Context, lb *msgqueue.LatBuf, pfc *frameContext, slots *SlotTable) error {
	queued := false
	var started func(span vdec.Span)
	if d.opts.InnerRacing {
		started = func(span vdec.Span) {
			pfc.trans = span
			queued = true
			d.emit(pfc, vdec.FrameCoreQueued, nil, nil)
			d.mq.QueueCore(lb)
		}
	}

	ring := d.mq.Ring()
	var (
		span vdec.Span
		out  vdec.Header
		err  error
	)
	for {
		d.emit(pfc, vdec.FrameLatRunning, nil, nil)
		span, out, err = d.runLat(ctx, pfc, started)
		started = nil
		if !errors.Is(err, vdec.ErrAgain) {
			break
		}

		retries := atomic.LoadInt32(&pfc.retries)
		if int(retries) >= d.opts.MaxLatRetries {
			err = fmt.Errorf("lat output full after %d retries: %w", retries, vdec.ErrNoMemory)
			break
		}
		atomic.AddInt32(&pfc.retries, 1)
		d.stats.Add(stats.CounterLatRetries, 1)
		d.logger.Warnf("frame %d: %v, retry", pfc.seq, err)
		d.emit(pfc, vdec.FrameLatRetry, nil, err)
		d.waitRead(ctx, ring.ReadMoved(), span)
	}

	if err != nil {
		d.countError(err)
		d.logger.Errorf("frame %d lat: %v", pfc.seq, err)
		pfc.result = vdec.Header{
			State: out.State,
			Ube:   ring.Mem(),
			Trans: vdec.Span{Start: span.Start, End: span.Start},
		}
		pfc.err = err
	} else {
		if e := ring.AdvanceWrite(out.Trans.End); e != nil {
			d.logger.Errorf("frame %d: %v", pfc.seq, e)
		}
		d.stats.Add(stats.CounterOutBytes, int64(out.Trans.End-span.Start))
		d.commit(pfc, slots)
		pfc.result = vdec.Header{
			State: out.State,
			Ube:   ring.Mem(),
			Trans: vdec.Span{Start: span.Start, End: out.Trans.End},
		}
	}
	close(pfc.latDone)
	d.emit(pfc, vdec.FrameLatDone, nil, err)

	if !queued {
		d.emit(pfc, vdec.FrameCoreQueued, nil, nil)
		d.mq.QueueCore(lb)
	}
	if err != nil {
		return &vdec.DropError{Seq: pfc.seq, Cause: err}
	}
	return nil
}

// commit 用 LAT 成功帧的槽表副本替换实例槽表并更新参考帧映射
func (d *Decoder) commit(pfc *frameContext, slots *SlotTable) {
	uh := &pfc.vsi.Frame.UH

	d.l.Lock()
	d.slots = *slots
	err := d.slots.UpdateReferenceMap(uh.RefreshFrameFlags, pfc.slot)
	d.width = uh.UpscaledWidth
	d.height = uh.FrameHeight
	d.frameType = uh.FrameType
	d.l.Unlock()

	if err != nil {
		d.logger.Warnf("frame %d: %v", pfc.seq, err)
	}
}

// waitRead 有在途输出时等待 CORE 释放 UBE 空间；超过 CORE 超时仍会重试
func (d *Decoder) waitRead(ctx context.Context, moved <-chan struct{}, span vdec.Span) {
	ring := d.mq.Ring()
	if w, r := ring.Pointers(); w == r || ring.Span() != span {
		return
	}

	timer := time.NewTimer(d.opts.CoreTimeout)
	defer timer.Stop()
	select {
	case <-moved:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// runLat 提交一次 LAT 并读回固件头部
func (d *Decoder) runLat(ctx context.Context, pfc *frameContext, started func(vdec.Span)) (span vdec.Span, out vdec.Header, err error) {
	ring := d.mq.Ring()
	span = ring.Span()

	vsi := pfc.vsi
	vsi.Header = vdec.Header{Ube: ring.Mem(), Trans: span}
	if err = d.vpu.WriteVSI(vdec.StageLat, vsi.Marshal()); err != nil {
		return
	}
	if err = d.vpu.Start(vdec.StageLat); err != nil {
		return
	}
	if started != nil {
		started(span)
	}

	if err = d.vpu.Wait(ctx, vdec.StageLat, d.opts.LatTimeout); err != nil {
		if errors.Is(err, vdec.ErrTimeout) {
			d.stats.Add(stats.CounterLatTimeouts, 1)
		}
		if e := d.vpu.SetTimeout(vdec.StageLat); e != nil {
			d.logger.Warnf("lat set timeout: %v", e)
		}
		if e := d.vpu.End(vdec.StageLat); e != nil {
			d.logger.Warnf("lat end: %v", e)
		}
		err = fmt.Errorf("lat wait: %w", err)
		return
	}
	if err = d.vpu.End(vdec.StageLat); err != nil {
		return
	}

	raw, err := d.vpu.ReadVSI(vdec.StageLat)
	if err != nil {
		return
	}
	if err = out.Unmarshal(raw); err != nil {
		return
	}
	if d.logger.LevelEnabled(xlog.DebugLevel) {
		d.logger.Debugf("frame %d LAT CRC %#08x, output size %d",
			pfc.seq, out.State.Crc[0], out.State.OutSize)
	}
	err = d.checkLat(span, &out)
	return
}

// checkLat 按固件状态判定 LAT 的结果。
// 输出满时，如果固件回写的区域已是整个 UBE 则为资源不足，否则可以重试
func (d *Decoder) checkLat(span vdec.Span, out *vdec.Header) error {
	st := &out.State
	switch {
	case st.Timeout != 0:
		return fmt.Errorf("lat aborted: %w", vdec.ErrTimeout)
	case st.Full != 0:
		if d.mq.Ring().Exhausted(out.Trans) {
			return fmt.Errorf("lat output exceeds ube of %d bytes: %w", d.mq.Ring().Capacity(), vdec.ErrNoMemory)
		}
		return fmt.Errorf("lat output full in %d bytes: %w", span.Len(), vdec.ErrAgain)
	case st.Err != 0:
		return fmt.Errorf("lat firmware error %d", st.Err)
	case out.Trans.End < span.Start || out.Trans.End > span.End:
		return fmt.Errorf("lat trans end %d outside [%d, %d]: %w",
			out.Trans.End, span.Start, span.End, vdec.ErrInvalidParam)
	}
	return nil
}
