// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	obu "github.com/cnotch/av1vdec/av/codec/av1"
	"github.com/cnotch/av1vdec/firmware/sim"
	"github.com/cnotch/av1vdec/stats"
	"github.com/cnotch/av1vdec/vdec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBitstreamSize = 1000

type doneFrame struct {
	ts  uint64
	err error
}

type testEnv struct {
	t       *testing.T
	vpu     *sim.VPU
	alloc   *vdec.HeapAllocator
	capture *vdec.BufferQueue
	stats   stats.Decode
	dec     *Decoder
	done    chan doneFrame
	bufs    []vdec.Mem

	l      sync.Mutex
	events []vdec.Event
}

func newTestEnv(t *testing.T, opts ...vdec.Option) *testEnv {
	e := &testEnv{
		t:     t,
		vpu:   sim.New(VsiSize),
		alloc: vdec.NewHeapAllocator(0),
		stats: stats.NewDecode(),
		done:  make(chan doneFrame, 64),
	}

	sizes, err := e.vpu.FrameBufferSizes(640, 512)
	require.NoError(t, err)
	e.capture, err = vdec.NewBufferQueue(e.alloc, 12, 2, sizes, func(fb *vdec.FrameBuffer, err error) {
		e.done <- doneFrame{ts: fb.Timestamp, err: err}
		e.capture.Requeue(fb)
	})
	require.NoError(t, err)

	opts = append([]vdec.Option{
		vdec.Stats(e.stats),
		vdec.Observer(e.observe),
	}, opts...)
	e.dec, err = New(e.vpu, e.alloc, e.capture, opts...)
	require.NoError(t, err)
	return e
}

func (e *testEnv) observe(ev vdec.Event) {
	e.l.Lock()
	e.events = append(e.events, ev)
	e.l.Unlock()
}

// states 某帧经历的状态序列
func (e *testEnv) states(seq uint64) (states []vdec.FrameState) {
	e.l.Lock()
	defer e.l.Unlock()
	for _, ev := range e.events {
		if ev.Seq == seq {
			states = append(states, ev.State)
		}
	}
	return
}

func (e *testEnv) event(seq uint64, state vdec.FrameState) (vdec.Event, bool) {
	e.l.Lock()
	defer e.l.Unlock()
	for _, ev := range e.events {
		if ev.Seq == seq && ev.State == state {
			return ev, true
		}
	}
	return vdec.Event{}, false
}

// order 事件在记录中的位置，找不到返回 -1
func (e *testEnv) order(seq uint64, state vdec.FrameState) int {
	e.l.Lock()
	defer e.l.Unlock()
	for i, ev := range e.events {
		if ev.Seq == seq && ev.State == state {
			return i
		}
	}
	return -1
}

func (e *testEnv) decode(ts uint64, c *obu.Controls) error {
	mem, err := e.alloc.Alloc(testBitstreamSize)
	require.NoError(e.t, err)
	e.bufs = append(e.bufs, mem)
	return e.dec.Decode(context.Background(), &vdec.Bitstream{Mem: mem, Timestamp: ts, Controls: c})
}

// next 等待下一帧 CORE 完成
func (e *testEnv) next() doneFrame {
	select {
	case f := <-e.done:
		return f
	case <-time.After(3 * time.Second):
		e.t.Fatal("timeout waiting for core")
	}
	return doneFrame{}
}

func (e *testEnv) close() {
	assert.NoError(e.t, e.dec.Close())
	e.capture.Free()
	for i := range e.bufs {
		e.alloc.Free(&e.bufs[i])
	}
}

func TestNew(t *testing.T) {
	alloc := vdec.NewHeapAllocator(0)
	capture, err := vdec.NewBufferQueue(alloc, 1, 1, [2]uint32{64, 32}, nil)
	require.NoError(t, err)
	defer capture.Free()

	_, err = New(nil, alloc, capture)
	assert.True(t, errors.Is(err, vdec.ErrInvalidParam))

	// vsi 大小不一致只记录日志
	d, err := New(sim.New(VsiSize+8), alloc, capture)
	require.NoError(t, err)
	assert.Equal(t, MaxFrameBufCount, d.DpbSize())
	require.NoError(t, d.Close())
	assert.NoError(t, d.Close(), "close twice")

	// 分配失败时释放已装载的表
	small := vdec.NewHeapAllocator(2 * sim.DefaultTableSize)
	_, err = New(sim.New(VsiSize), small, capture)
	assert.True(t, errors.Is(err, vdec.ErrNoMemory))
	bytes, count := small.InUse()
	assert.Zero(t, bytes)
	assert.Zero(t, count)
}

func TestDecoder_KeyThenInter(t *testing.T) {
	e := newTestEnv(t)
	defer e.close()

	require.NoError(t, e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF)))
	f := e.next()
	assert.Equal(t, uint64(1), f.ts)
	assert.NoError(t, f.err)

	slots := e.dec.Slots()
	assert.Equal(t, int32(obu.TotalRefsPerFrame), slots.FrameInfo[0].RefCount)
	assert.Equal(t, uint64(1), slots.Timestamp[0])
	for _, idx := range slots.RefFrameMap {
		assert.Equal(t, 0, idx)
	}

	pic, err := e.dec.PicInfo()
	require.NoError(t, err)
	assert.Equal(t, vdec.PicInfo{
		Width:  640,
		Height: 480,
		BufW:   640,
		BufH:   512,
		FbSize: [2]uint32{640 * 512, 640 * 512 / 2},
	}, pic)
	assert.Equal(t, vdec.Rect{Width: 640, Height: 480}, e.dec.CropInfo())

	require.NoError(t, e.decode(2, interControls(640, 480, 0x01, 1, 1)))
	f = e.next()
	assert.Equal(t, uint64(2), f.ts)
	assert.NoError(t, f.err)

	slots = e.dec.Slots()
	assert.Equal(t, int32(7), slots.FrameInfo[0].RefCount)
	assert.Equal(t, int32(1), slots.FrameInfo[1].RefCount)
	assert.Equal(t, 1, slots.RefFrameMap[0])
	assert.Equal(t, obu.InterFrame, slots.FrameInfo[1].FrameType)

	w, r := e.dec.mq.Ring().Pointers()
	assert.Equal(t, uint64(2*testBitstreamSize), w)
	assert.Equal(t, w, r, "core consumed all lat output")

	sample := e.stats.GetSample()
	assert.Equal(t, int64(2), sample.Frames)
	assert.Equal(t, int64(2), sample.Decoded)
	assert.Zero(t, sample.Dropped)
	assert.Equal(t, int64(2*testBitstreamSize), sample.OutBytes)

	assert.Eventually(t, func() bool {
		return len(e.states(2)) == 6
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []vdec.FrameState{
		vdec.FrameLatSetup,
		vdec.FrameLatRunning,
		vdec.FrameLatDone,
		vdec.FrameCoreQueued,
		vdec.FrameCoreRunning,
		vdec.FrameCoreDone,
	}, e.states(2))
	ev, ok := e.event(2, vdec.FrameCoreDone)
	require.True(t, ok)
	assert.Len(t, ev.Crc, 8)
	assert.Equal(t, 1, ev.Slot)
}

func TestDecoder_LatRetry(t *testing.T) {
	e := newTestEnv(t)
	defer e.close()

	e.vpu.Script(vdec.StageLat, sim.FullRetry, sim.FullRetry)
	require.NoError(t, e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF)))
	assert.NoError(t, e.next().err)

	assert.Equal(t, 3, e.vpu.Starts(vdec.StageLat))
	assert.Equal(t, 1, e.vpu.Starts(vdec.StageCore))

	// 重试不分配新的参考槽
	slots := e.dec.Slots()
	counts := slots.RefCounts()
	assert.Equal(t, int32(obu.TotalRefsPerFrame), counts[0])
	for _, c := range counts[1:] {
		assert.Zero(t, c)
	}

	ev, ok := e.event(1, vdec.FrameLatDone)
	require.True(t, ok)
	assert.Equal(t, 2, ev.Retries)
	assert.Equal(t, 0, ev.Slot)
	retries := 0
	for _, s := range e.states(1) {
		if s == vdec.FrameLatRetry {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
	assert.Equal(t, int64(2), e.stats.GetSample().LatRetries)
}

func TestDecoder_LatRetryBound(t *testing.T) {
	e := newTestEnv(t, vdec.MaxLatRetries(1))
	defer e.close()

	e.vpu.Script(vdec.StageLat, sim.FullRetry, sim.FullRetry, sim.FullRetry)
	err := e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF))
	assert.True(t, errors.Is(err, vdec.ErrNoMemory))
	assert.True(t, errors.Is(err, vdec.ErrBusy))
	assert.Equal(t, 2, e.vpu.Starts(vdec.StageLat))

	f := e.next()
	assert.True(t, errors.Is(f.err, vdec.ErrNoMemory))
	assert.Equal(t, NewSlotTable(), e.dec.Slots())
}

func TestDecoder_UbeBackpressure(t *testing.T) {
	e := newTestEnv(t, vdec.UbeSize(2048))
	defer e.close()

	e.vpu.SetOutputSize(1500)
	e.vpu.SetDelay(vdec.StageCore, 50*time.Millisecond)

	require.NoError(t, e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF)))
	// CORE 尚未释放第一帧的输出，第二帧等待读指针前进后重试
	require.NoError(t, e.decode(2, interControls(640, 480, 0x01, 1, 1)))
	assert.NoError(t, e.next().err)
	assert.NoError(t, e.next().err)

	ev, ok := e.event(2, vdec.FrameLatDone)
	require.True(t, ok)
	assert.Equal(t, 1, ev.Retries)

	w, r := e.dec.mq.Ring().Pointers()
	assert.Equal(t, uint64(3000), w)
	assert.Equal(t, w, r)
}

func TestDecoder_UbeExhausted(t *testing.T) {
	tests := []struct {
		name  string
		setup func(v *sim.VPU)
	}{
		{"firmware", func(v *sim.VPU) { v.Script(vdec.StageLat, sim.FullExhausted) }},
		{"oversized", func(v *sim.VPU) { v.SetOutputSize(4096) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, vdec.UbeSize(2048))
			defer e.close()

			require.NoError(t, e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF)))
			require.NoError(t, e.next().err)
			before := e.dec.Slots()
			w0, r0 := e.dec.mq.Ring().Pointers()

			tt.setup(e.vpu)
			err := e.decode(2, interControls(1280, 720, 0x01, 1, 1))
			var de *vdec.DropError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, uint64(2), de.Seq)
			assert.True(t, errors.Is(err, vdec.ErrNoMemory))
			assert.True(t, errors.Is(err, vdec.ErrBusy))

			f := e.next()
			assert.Equal(t, uint64(2), f.ts)
			assert.True(t, errors.Is(f.err, vdec.ErrNoMemory))

			assert.Equal(t, before, e.dec.Slots(), "failed frame leaves slots untouched")
			w, r := e.dec.mq.Ring().Pointers()
			assert.Equal(t, w0, w)
			assert.Equal(t, r0, r)
			assert.Equal(t, vdec.Rect{Width: 640, Height: 480}, e.dec.CropInfo())

			sample := e.stats.GetSample()
			assert.Equal(t, int64(1), sample.NoMemory)
			assert.Equal(t, int64(1), sample.Dropped)
			assert.Zero(t, sample.CoreErrors)
			assert.Equal(t, 1, e.vpu.Starts(vdec.StageCore), "failed frame skips core hardware")
		})
	}
}

func TestDecoder_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		controls interface{}
		err      error
	}{
		{"wrong controls", "controls", vdec.ErrInvalidParam},
		{"nil controls", (*obu.Controls)(nil), vdec.ErrInvalidParam},
		{"missing frame", &obu.Controls{Sequence: &obu.SequenceHeader{}}, vdec.ErrInvalidParam},
		{"tile mismatch", func() *obu.Controls {
			c := newControls(obu.KeyFrame, 1920, 1080, 0xFF)
			splitTiles(c, 2, 2)
			c.TileGroupEntries = c.TileGroupEntries[:3]
			return c
		}(), vdec.ErrInvalidParam},
		{"too large", newControls(obu.KeyFrame, UHDMaxWidth+64, 2160, 0xFF), vdec.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			defer e.close()

			mem, err := e.alloc.Alloc(testBitstreamSize)
			require.NoError(t, err)
			e.bufs = append(e.bufs, mem)
			err = e.dec.Decode(context.Background(), &vdec.Bitstream{Mem: mem, Timestamp: 1, Controls: tt.controls})
			assert.True(t, errors.Is(err, tt.err), "err = %v", err)
			var de *vdec.DropError
			assert.False(t, errors.As(err, &de), "rejected before lat")

			assert.Zero(t, e.vpu.Starts(vdec.StageLat))
			assert.Equal(t, e.dec.mq.Depth(), e.dec.mq.Free())
			assert.Equal(t, NewSlotTable(), e.dec.Slots())
			assert.Equal(t, TierNone, e.dec.Status().Detail.(*Status).Tier)

			sample := e.stats.GetSample()
			assert.Equal(t, int64(1), sample.Invalid)
			assert.Equal(t, int64(1), sample.Dropped)
		})
	}
}

func TestDecoder_LatTimeout(t *testing.T) {
	e := newTestEnv(t, vdec.Timeouts(20*time.Millisecond, time.Second))
	defer e.close()

	e.vpu.Script(vdec.StageLat, sim.Hang)
	err := e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF))
	assert.True(t, errors.Is(err, vdec.ErrTimeout), "err = %v", err)
	assert.True(t, errors.Is(err, vdec.ErrBusy))
	assert.True(t, errors.Is(e.next().err, vdec.ErrTimeout))
	assert.Equal(t, NewSlotTable(), e.dec.Slots())

	// 超时后实例仍然可用
	require.NoError(t, e.decode(2, newControls(obu.KeyFrame, 640, 480, 0xFF)))
	f := e.next()
	assert.Equal(t, uint64(2), f.ts)
	assert.NoError(t, f.err)

	sample := e.stats.GetSample()
	assert.Equal(t, int64(1), sample.LatTimeouts)
	assert.Equal(t, int64(1), sample.Decoded)
}

func TestDecoder_CoreFailure(t *testing.T) {
	tests := []struct {
		name    string
		outcome sim.Outcome
		err     error
	}{
		{"hang", sim.Hang, vdec.ErrTimeout},
		{"error", sim.Error, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, vdec.Timeouts(time.Second, 20*time.Millisecond))
			defer e.close()

			e.vpu.Script(vdec.StageCore, tt.outcome)
			require.NoError(t, e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF)))
			f := e.next()
			require.Error(t, f.err)
			if tt.err != nil {
				assert.True(t, errors.Is(f.err, tt.err))
			}

			// LAT 已经提交，读指针仍然推进
			w, r := e.dec.mq.Ring().Pointers()
			assert.Equal(t, uint64(testBitstreamSize), w)
			assert.Equal(t, w, r)
			assert.Equal(t, int32(obu.TotalRefsPerFrame), e.dec.Slots().FrameInfo[0].RefCount)

			require.NoError(t, e.decode(2, interControls(640, 480, 0x01, 1, 1)))
			assert.NoError(t, e.next().err)

			sample := e.stats.GetSample()
			assert.Equal(t, int64(1), sample.CoreErrors)
			assert.Equal(t, int64(1), sample.Dropped)
			assert.Equal(t, int64(1), sample.Decoded)
		})
	}
}

func TestDecoder_Flush(t *testing.T) {
	e := newTestEnv(t)
	defer e.close()

	require.NoError(t, e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF)))
	require.NoError(t, e.decode(2, interControls(640, 480, 0x01, 1, 1)))
	require.NoError(t, e.dec.Decode(context.Background(), nil))
	assert.Equal(t, 1, e.vpu.Resets())

	// flush 等待全部 CORE 完成
	assert.Len(t, e.done, 2)
	assert.Equal(t, e.dec.mq.Depth(), e.dec.mq.Free())

	slots := e.dec.Slots()
	for _, idx := range slots.RefFrameMap {
		assert.Equal(t, InvalidIndex, idx)
	}
	for i, c := range slots.RefCounts() {
		assert.Zero(t, c, "slot %d", i)
	}

	// flush 之后从 key 帧重新开始
	require.NoError(t, e.decode(3, newControls(obu.KeyFrame, 640, 480, 0xFF)))
	require.NoError(t, e.dec.Decode(context.Background(), nil))
	assert.Equal(t, 2, e.vpu.Resets())
	assert.Equal(t, InvalidIndex, e.dec.Slots().RefFrameMap[0])
}

func TestDecoder_Racing(t *testing.T) {
	e := newTestEnv(t, vdec.InnerRacing(true))
	defer e.close()

	e.vpu.SetDelay(vdec.StageLat, 20*time.Millisecond)
	require.NoError(t, e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF)))
	require.NoError(t, e.decode(2, interControls(640, 480, 0x01, 1, 1)))
	assert.NoError(t, e.next().err)
	assert.NoError(t, e.next().err)

	// CORE 在 LAT 完成之前入队
	states := e.states(1)
	queued, latDone := -1, -1
	for i, s := range states {
		switch s {
		case vdec.FrameCoreQueued:
			queued = i
		case vdec.FrameLatDone:
			latDone = i
		}
	}
	require.NotEqual(t, -1, queued)
	require.NotEqual(t, -1, latDone)
	assert.Less(t, queued, latDone)

	w, r := e.dec.mq.Ring().Pointers()
	assert.Equal(t, uint64(2*testBitstreamSize), w)
	assert.Equal(t, w, r)
	assert.Equal(t, int32(7), e.dec.Slots().FrameInfo[0].RefCount)
}

func TestDecoder_RacingLatFailure(t *testing.T) {
	e := newTestEnv(t, vdec.InnerRacing(true))
	defer e.close()

	e.vpu.Script(vdec.StageLat, sim.FullExhausted)
	err := e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF))
	assert.True(t, errors.Is(err, vdec.ErrNoMemory))

	f := e.next()
	assert.True(t, errors.Is(f.err, vdec.ErrNoMemory))
	w, r := e.dec.mq.Ring().Pointers()
	assert.Zero(t, w)
	assert.Zero(t, r)
	assert.Equal(t, NewSlotTable(), e.dec.Slots())
}

func TestDecoder_NoFreeSlot(t *testing.T) {
	e := newTestEnv(t)
	defer e.close()

	e.dec.l.Lock()
	for i := range e.dec.slots.FrameInfo {
		e.dec.slots.FrameInfo[i].RefCount = 1
		e.dec.slots.Timestamp[i] = uint64(100 + i)
	}
	e.dec.l.Unlock()

	// 没有空闲槽时直接使用槽 0，不增加计数也不改写时间戳
	require.NoError(t, e.decode(9, newControls(obu.KeyFrame, 640, 480, 0x01)))
	assert.NoError(t, e.next().err)

	ev, ok := e.event(1, vdec.FrameLatDone)
	require.True(t, ok)
	assert.Equal(t, 0, ev.Slot)

	slots := e.dec.Slots()
	assert.Equal(t, 0, slots.RefFrameMap[0])
	assert.Equal(t, uint64(100), slots.Timestamp[0])
	assert.Equal(t, int32(1), slots.FrameInfo[0].RefCount)
	for i := 1; i < MaxFrameBufCount; i++ {
		assert.Equal(t, int32(1), slots.FrameInfo[i].RefCount, "slot %d", i)
		assert.Equal(t, uint64(100+i), slots.Timestamp[i], "slot %d", i)
	}
}

func TestDecoder_TierChangeWaitsCore(t *testing.T) {
	e := newTestEnv(t)
	defer e.close()
	e.vpu.SetDelay(vdec.StageCore, 100*time.Millisecond)

	require.NoError(t, e.decode(1, newControls(obu.KeyFrame, 1920, 1080, 0xFF)))
	oldMv := e.dec.wb.Mv[0].Addr

	// 换到 4K 档位前等待第一帧完成 CORE
	require.NoError(t, e.decode(2, newControls(obu.KeyFrame, 3840, 2160, 0xFF)))
	require.NotZero(t, len(e.done), "frame 1 still in core")
	assert.Equal(t, uint64(1), e.next().ts)
	assert.NotEqual(t, oldMv, e.dec.wb.Mv[0].Addr)

	before, after := e.order(1, vdec.FrameCoreDone), e.order(2, vdec.FrameLatRunning)
	require.True(t, before >= 0 && after >= 0)
	assert.True(t, before < after)

	assert.Equal(t, uint64(2), e.next().ts)
	detail := e.dec.Status().Detail.(*Status)
	assert.Equal(t, Tier4K, detail.Tier)
	assert.Equal(t, 1, detail.Reallocs)
}

func TestDecoder_SuperresTier(t *testing.T) {
	e := newTestEnv(t)
	defer e.close()

	c := newControls(obu.KeyFrame, 1920, 1080, 0xFF)
	c.Frame.UpscaledWidth = 2560
	require.NoError(t, e.decode(1, c))
	assert.NoError(t, e.next().err)

	// 档位按编码宽度选择
	assert.Equal(t, TierFHD, e.dec.Status().Detail.(*Status).Tier)
}

func TestDecoder_ResolutionChange(t *testing.T) {
	e := newTestEnv(t)
	defer e.close()

	sizes := [][2]uint32{{640, 480}, {1920, 1080}, {3840, 2160}, {640, 480}}
	for i, s := range sizes {
		require.NoError(t, e.decode(uint64(i+1), newControls(obu.KeyFrame, s[0], s[1], 0xFF)))
		assert.NoError(t, e.next().err)
	}

	st := e.dec.Status()
	assert.Equal(t, vdec.CodecAV1, st.Codec)
	assert.Equal(t, MaxFrameBufCount, st.Dpb)
	assert.Equal(t, e.dec.mq.Depth(), st.LatBufs)
	assert.Equal(t, uint32(640), st.Pic.Width)
	assert.Equal(t, vdec.Rect{Width: 640, Height: 480}, st.Crop)

	detail := st.Detail.(*Status)
	assert.Equal(t, TierFHD, detail.Tier)
	assert.Equal(t, 3, detail.Allocs)
	assert.Equal(t, 2, detail.Reallocs)
	assert.Equal(t, uint64(4), detail.Seq)
	assert.Equal(t, int64(2), e.stats.GetSample().Reallocs)
}

func TestDecoder_Close(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.decode(1, newControls(obu.KeyFrame, 640, 480, 0xFF)))
	e.close()
	assert.Len(t, e.done, 1, "close waits for in-flight frames")

	err := e.dec.Decode(context.Background(), nil)
	assert.True(t, errors.Is(err, vdec.ErrClosed))
	bytes, count := e.alloc.InUse()
	assert.Zero(t, bytes)
	assert.Zero(t, count)
}
