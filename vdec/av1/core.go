// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"context"
	"errors"
	"fmt"

	"github.com/cnotch/av1vdec/stats"
	"github.com/cnotch/av1vdec/vdec"
	"github.com/cnotch/av1vdec/vdec/msgqueue"
	"github.com/cnotch/xlog"
)

// decodeCore 在 CORE 协程中完成一帧。
// 无论成败都推进 UBE 读指针并归还输出缓冲
func (d *Decoder) decodeCore(lb *msgqueue.LatBuf) {
	pfc := contextOf(lb)
	d.emit(pfc, vdec.FrameCoreRunning, nil, nil)

	fb, out, err := d.runCore(lb, pfc)
	<-pfc.latDone

	// CORE 不会读过本帧 LAT 的输出
	end := pfc.result.Trans.End
	if err == nil && out.Trans.End < end {
		end = out.Trans.End
	}
	d.mq.Ring().AdvanceRead(end)

	var crc []uint32
	if err != nil {
		if pfc.err == nil {
			d.stats.Add(stats.CounterCoreErrors, 1)
		}
		d.stats.Add(stats.CounterDropped, 1)
		d.logger.Errorf("frame %d core: %v", pfc.seq, err)
	} else {
		d.stats.Add(stats.CounterDecoded, 1)
		st := &out.State
		crc = []uint32{
			st.Crc[0], st.Crc[1], st.Crc[2], st.Crc[3],
			st.Crc[8], st.Crc[9], st.Crc[10], st.Crc[11],
		}
		if d.logger.LevelEnabled(xlog.DebugLevel) {
			d.logger.Debugf("frame %d crc y: %08x %08x %08x %08x, c: %08x %08x %08x %08x",
				pfc.seq, crc[0], crc[1], crc[2], crc[3], crc[4], crc[5], crc[6], crc[7])
		}
	}

	if fb != nil {
		d.capture.Done(fb, err)
	}
	d.emit(pfc, vdec.FrameCoreDone, crc, err)
}

// runCore 取输出缓冲并提交 CORE。LAT 已失败的帧不再提交硬件；
// 竞速模式下先等待 CORE 自身的完成信号，再等待 LAT 结果
func (d *Decoder) runCore(lb *msgqueue.LatBuf, pfc *frameContext) (fb *vdec.FrameBuffer, out vdec.Header, err error) {
	fb, err = d.capture.Next()
	if err != nil {
		err = fmt.Errorf("capture buffer: %w", err)
		return
	}
	fb.Timestamp = pfc.ts

	ring := d.mq.Ring()
	vsi := pfc.vsi
	vsi.Header = vdec.Header{Ube: ring.Mem()}
	select {
	case <-pfc.latDone:
		if pfc.err != nil {
			err = pfc.err
			return
		}
		vsi.Header.Trans = pfc.result.Trans
	default:
		vsi.Header.Trans = pfc.trans
	}

	planes := d.capture.Planes()
	size := uint64(vdec.Align(pfc.width, 64)) * uint64(vdec.Align(pfc.height, 64))
	vsi.Fb = planesOf(fb, size, planes)
	if !pfc.intra {
		for i, ts := range pfc.refTs {
			ref := d.capture.FindTimestamp(ts)
			if ref == nil {
				vsi.Ref[i] = PlaneBuffer{}
				continue
			}
			vsi.Ref[i] = planesOf(ref, size, planes)
		}
	}
	vsi.Tile = vdec.Mem{Addr: lb.Tile.Addr, Size: pfc.tileLen}

	if err = d.vpu.WriteVSI(vdec.StageCore, vsi.Marshal()); err != nil {
		return
	}
	if err = d.vpu.Start(vdec.StageCore); err != nil {
		return
	}
	if err = d.vpu.Wait(context.Background(), vdec.StageCore, d.opts.CoreTimeout); err != nil {
		if errors.Is(err, vdec.ErrTimeout) {
			d.stats.Add(stats.CounterCoreTimeouts, 1)
		}
		if e := d.vpu.SetTimeout(vdec.StageCore); e != nil {
			d.logger.Warnf("core set timeout: %v", e)
		}
	}
	if e := d.vpu.End(vdec.StageCore); e != nil && err == nil {
		err = e
	}

	<-pfc.latDone
	if pfc.err != nil {
		err = pfc.err
		return
	}
	if err != nil {
		err = fmt.Errorf("core wait: %w", err)
		return
	}

	raw, err := d.vpu.ReadVSI(vdec.StageCore)
	if err != nil {
		return
	}
	if err = out.Unmarshal(raw); err != nil {
		return
	}
	switch {
	case out.State.Timeout != 0:
		err = fmt.Errorf("core aborted: %w", vdec.ErrTimeout)
	case out.State.Err != 0:
		err = fmt.Errorf("core firmware error %d", out.State.Err)
	}
	return
}

// planesOf 输出缓冲的平面地址；单平面格式的色度紧跟在亮度之后
func planesOf(fb *vdec.FrameBuffer, lumaSize uint64, planes int) PlaneBuffer {
	pb := PlaneBuffer{Y: fb.Y, C: fb.C}
	if planes == 1 {
		pb.C = vdec.Mem{Addr: fb.Y.Addr + lumaSize}
	}
	pb.Y.Data, pb.C.Data = nil, nil
	return pb
}
