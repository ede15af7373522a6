// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cnotch/av1vdec/utils/bits"
	"github.com/cnotch/av1vdec/vdec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// latVSI 头部后紧跟码流缓冲的地址和大小
func latVSI(trans vdec.Span, bsSize uint64) []byte {
	hdr := vdec.Header{
		Ube:   vdec.Mem{Addr: 0x1000, Size: 4096},
		Trans: trans,
	}
	w := bits.NewWriter(vdec.HeaderSize + 16)
	hdr.Put(w)
	w.PutUint64(0x8000)
	w.PutUint64(bsSize)
	return w.Bytes()
}

func runStage(t *testing.T, v *VPU, s vdec.Stage, vsi []byte) vdec.Header {
	require.NoError(t, v.WriteVSI(s, vsi))
	require.NoError(t, v.Start(s))
	require.NoError(t, v.Wait(context.Background(), s, time.Second))
	b, err := v.ReadVSI(s)
	require.NoError(t, err)
	require.NoError(t, v.End(s))

	var hdr vdec.Header
	require.NoError(t, hdr.Unmarshal(b))
	return hdr
}

func TestVPU_Init(t *testing.T) {
	v := New(1024)
	assert.Equal(t, ErrNotInit, v.WriteVSI(vdec.StageLat, latVSI(vdec.Span{}, 0)))
	assert.Equal(t, ErrNotInit, v.Start(vdec.StageLat))
	assert.Equal(t, ErrNotInit, v.Deinit())

	_, err := v.Init(vdec.CodecUnknown)
	assert.True(t, errors.Is(err, vdec.ErrUnsupported))

	info, err := v.Init(vdec.CodecAV1)
	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultArchitecture), info.Architecture)
	assert.Equal(t, 1024, info.VsiSize)
	assert.Len(t, info.CdfTable, DefaultTableSize)
	assert.Len(t, info.IqTable, DefaultTableSize)

	// 返回的表是副本
	info.CdfTable[1] = 0xFF
	again, err := v.Init(vdec.CodecAV1)
	require.NoError(t, err)
	assert.Equal(t, byte(1), again.CdfTable[1])

	assert.NoError(t, v.Deinit())
}

func TestVPU_Outcomes(t *testing.T) {
	trans := vdec.Span{Start: 100, End: 100 + 4096}
	tests := []struct {
		name    string
		outcome Outcome
		outSize uint64
		full    uint32
		err     int32
		end     uint64
	}{
		{"success", Success, 0, 0, 0, 1100},
		{"output size", Success, 300, 0, 0, 400},
		{"full retry", FullRetry, 0, 1, 0, 100},
		{"full exhausted", FullExhausted, 0, 1, 0, 100 + 4096},
		{"overflow", Success, 5000, 1, 0, 100 + 4096},
		{"error", Error, 0, 0, -1, 100 + 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(1024)
			_, err := v.Init(vdec.CodecAV1)
			require.NoError(t, err)
			v.SetOutputSize(tt.outSize)
			v.Script(vdec.StageLat, tt.outcome)

			hdr := runStage(t, v, vdec.StageLat, latVSI(trans, 1000))
			assert.Equal(t, tt.full, hdr.State.Full)
			assert.Equal(t, tt.err, hdr.State.Err)
			assert.Equal(t, trans.Start, hdr.Trans.Start)
			assert.Equal(t, tt.end, hdr.Trans.End)
			assert.Equal(t, 1, v.Starts(vdec.StageLat))
		})
	}
}

func TestVPU_Crc(t *testing.T) {
	v := New(1024)
	_, err := v.Init(vdec.CodecAV1)
	require.NoError(t, err)

	vsi := latVSI(vdec.Span{End: 4096}, 10)
	a := runStage(t, v, vdec.StageCore, vsi)
	b := runStage(t, v, vdec.StageCore, vsi)
	assert.Equal(t, a.State.Crc, b.State.Crc)
	assert.Equal(t, a.State.Crc[0]+3, a.State.Crc[3])
	assert.Equal(t, vsi, v.LastVSI(vdec.StageCore))

	c := runStage(t, v, vdec.StageCore, latVSI(vdec.Span{End: 4096}, 20))
	assert.NotEqual(t, a.State.Crc[0], c.State.Crc[0])
}

func TestVPU_Busy(t *testing.T) {
	v := New(1024)
	_, err := v.Init(vdec.CodecAV1)
	require.NoError(t, err)
	v.SetDelay(vdec.StageLat, 20*time.Millisecond)

	require.NoError(t, v.WriteVSI(vdec.StageLat, latVSI(vdec.Span{End: 4096}, 10)))
	require.NoError(t, v.Start(vdec.StageLat))
	assert.True(t, errors.Is(v.Start(vdec.StageLat), vdec.ErrBusy))

	// 两个阶段互不影响
	require.NoError(t, v.WriteVSI(vdec.StageCore, latVSI(vdec.Span{End: 4096}, 10)))
	assert.NoError(t, v.Start(vdec.StageCore))

	assert.NoError(t, v.Wait(context.Background(), vdec.StageLat, time.Second))
	assert.NoError(t, v.End(vdec.StageLat))
	assert.NoError(t, v.Start(vdec.StageLat))
}

func TestVPU_Hang(t *testing.T) {
	v := New(1024)
	_, err := v.Init(vdec.CodecAV1)
	require.NoError(t, err)
	v.Script(vdec.StageCore, Hang)

	assert.True(t, errors.Is(v.Wait(context.Background(), vdec.StageCore, time.Millisecond), vdec.ErrInvalidParam),
		"wait before start")

	require.NoError(t, v.WriteVSI(vdec.StageCore, latVSI(vdec.Span{End: 4096}, 10)))
	require.NoError(t, v.Start(vdec.StageCore))
	err = v.Wait(context.Background(), vdec.StageCore, 10*time.Millisecond)
	assert.True(t, errors.Is(err, vdec.ErrTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, v.Wait(ctx, vdec.StageCore, time.Second))

	require.NoError(t, v.SetTimeout(vdec.StageCore))
	b, err := v.ReadVSI(vdec.StageCore)
	require.NoError(t, err)
	var hdr vdec.Header
	require.NoError(t, hdr.Unmarshal(b))
	assert.Equal(t, uint32(1), hdr.State.Timeout)
	assert.NoError(t, v.End(vdec.StageCore))

	// 超时后的下一次执行正常完成
	hdr = runStage(t, v, vdec.StageCore, latVSI(vdec.Span{End: 4096}, 10))
	assert.Zero(t, hdr.State.Timeout)
	assert.Zero(t, hdr.State.Err)
}

func TestVPU_InvalidVSI(t *testing.T) {
	v := New(1024)
	_, err := v.Init(vdec.CodecAV1)
	require.NoError(t, err)
	err = v.WriteVSI(vdec.StageLat, make([]byte, vdec.HeaderSize-1))
	assert.True(t, errors.Is(err, vdec.ErrInvalidParam))
}

func TestVPU_FrameBufferSizes(t *testing.T) {
	v := New(1024)
	sizes, err := v.FrameBufferSizes(640, 512)
	require.NoError(t, err)
	assert.Equal(t, [2]uint32{640 * 512, 640 * 256}, sizes)

	assert.NoError(t, v.Reset())
	assert.NoError(t, v.Reset())
	assert.Equal(t, 2, v.Resets())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "FULL_RETRY", FullRetry.String())
	assert.Equal(t, "HANG", Hang.String())
	assert.Equal(t, "UNKNOWN", Outcome(99).String())
}
