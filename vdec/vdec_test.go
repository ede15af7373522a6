// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vdec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_Text(t *testing.T) {
	var c Codec
	require.NoError(t, c.UnmarshalText([]byte("av1")))
	assert.Equal(t, CodecAV1, c)
	text, _ := c.MarshalText()
	assert.Equal(t, "AV1", string(text))
	assert.Error(t, c.UnmarshalText([]byte("vp9")))
	assert.Equal(t, "UNKNOWN", CodecUnknown.String())
}

func TestAlign(t *testing.T) {
	assert.Equal(t, uint32(1920), Align(1920, 64))
	assert.Equal(t, uint32(1088), Align(1080, 64))
	assert.Equal(t, uint32(64), Align(1, 64))
	assert.Equal(t, uint32(0), Align(0, 64))
}

func TestHeapAllocator(t *testing.T) {
	a := NewHeapAllocator(8192)

	m1, err := a.Alloc(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), m1.Size)
	assert.Len(t, m1.Data, 100)
	assert.Zero(t, m1.Addr%heapPageSize)

	m2, err := a.Alloc(4096)
	require.NoError(t, err)
	assert.Equal(t, m1.Addr+heapPageSize, m2.Addr)

	_, err = a.Alloc(8000)
	assert.True(t, errors.Is(err, ErrNoMemory))

	_, err = a.Alloc(0)
	assert.True(t, errors.Is(err, ErrInvalidParam))

	bytes, count := a.InUse()
	assert.Equal(t, uint64(4196), bytes)
	assert.Equal(t, 2, count)

	a.Free(&m1)
	assert.False(t, m1.Valid())
	a.Free(&m1) // 重复释放无效
	bytes, count = a.InUse()
	assert.Equal(t, uint64(4096), bytes)
	assert.Equal(t, 1, count)
}

func TestMem_Zero(t *testing.T) {
	m := Mem{Data: []byte{1, 2, 3}}
	m.Zero()
	assert.Equal(t, []byte{0, 0, 0}, m.Data)
}

func TestHeader_MarshalUnmarshal(t *testing.T) {
	h := Header{
		State: State{Err: -11, Full: 1, Timeout: 1, Perf: 7, OutSize: 4096},
		Ube:   Mem{Addr: 0x40000000, Size: 0x100000},
		Trans: Span{Start: 0x200, End: 0x1200},
	}
	for i := range h.State.Crc {
		h.State.Crc[i] = uint32(i * 3)
	}

	data := h.Marshal()
	require.Len(t, data, HeaderSize)

	var got Header
	require.NoError(t, got.Unmarshal(data))
	assert.Equal(t, h, got)

	err := got.Unmarshal(data[:HeaderSize-1])
	assert.True(t, errors.Is(err, ErrInvalidParam))
}

func TestSpan_Len(t *testing.T) {
	assert.Equal(t, uint64(16), Span{Start: 16, End: 32}.Len())
	assert.Equal(t, uint64(0), Span{Start: 32, End: 16}.Len())
}

func TestBufferQueue(t *testing.T) {
	a := NewHeapAllocator(0)
	var done []int
	q, err := NewBufferQueue(a, 3, 1, [2]uint32{64, 32}, func(fb *FrameBuffer, err error) {
		done = append(done, fb.Index)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Planes())

	fb0, err := q.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, fb0.Index)
	assert.Equal(t, uint64(96), fb0.Y.Size)
	assert.False(t, fb0.C.Valid())
	fb0.Timestamp = 1000

	fb1, _ := q.Next()
	fb1.Timestamp = 2000
	fb2, _ := q.Next()
	fb2.Timestamp = 3000

	_, err = q.Next()
	assert.True(t, errors.Is(err, ErrBusy))

	assert.Equal(t, fb1, q.FindTimestamp(2000))
	assert.Nil(t, q.FindTimestamp(4000))

	q.Done(fb1, ErrTimeout)
	assert.Equal(t, []int{1}, done)
	assert.Equal(t, ErrTimeout, fb1.Err)

	q.Requeue(fb1)
	q.Requeue(fb1)
	assert.Equal(t, 1, q.Len())
	// 重新入队的缓冲仍可被引用
	assert.Equal(t, fb1, q.FindTimestamp(2000))

	again, err := q.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, again.Index)
	assert.Nil(t, again.Err)

	q.Free()
	bytes, count := a.InUse()
	assert.Zero(t, bytes)
	assert.Zero(t, count)
}

func TestBufferQueue_TwoPlanes(t *testing.T) {
	a := NewHeapAllocator(0)
	q, err := NewBufferQueue(a, 2, 2, [2]uint32{64, 32}, nil)
	require.NoError(t, err)
	fb, _ := q.Next()
	assert.Equal(t, uint64(64), fb.Y.Size)
	assert.Equal(t, uint64(32), fb.C.Size)

	_, err = NewBufferQueue(a, 0, 1, [2]uint32{64, 32}, nil)
	assert.True(t, errors.Is(err, ErrInvalidParam))
}

func TestBufferQueue_AllocFailure(t *testing.T) {
	a := NewHeapAllocator(100)
	_, err := NewBufferQueue(a, 2, 2, [2]uint32{64, 32}, nil)
	assert.True(t, errors.Is(err, ErrNoMemory))
	bytes, count := a.InUse()
	assert.Zero(t, bytes)
	assert.Zero(t, count)
}

func TestNewOptions(t *testing.T) {
	o := NewOptions()
	assert.Equal(t, DefaultTimeout, o.LatTimeout)
	assert.Equal(t, DefaultTimeout, o.CoreTimeout)
	assert.Equal(t, DefaultMaxLatRetries, o.MaxLatRetries)
	assert.NotNil(t, o.Logger)
	assert.NotNil(t, o.Stats)

	o = NewOptions(Timeouts(10*time.Millisecond, 0), InnerRacing(true),
		MaxLatRetries(-1), LatBufWait(time.Second))
	assert.Equal(t, 10*time.Millisecond, o.LatTimeout)
	assert.Equal(t, DefaultTimeout, o.CoreTimeout)
	assert.True(t, o.InnerRacing)
	assert.Equal(t, 0, o.MaxLatRetries)
	assert.Equal(t, time.Second, o.LatBufWait)
}

func TestFrameState_String(t *testing.T) {
	assert.Equal(t, "LAT_RETRY", FrameLatRetry.String())
	assert.Equal(t, "CORE_DONE", FrameCoreDone.String())
	assert.Equal(t, "UNKNOWN", FrameState(100).String())
}

func TestDropError(t *testing.T) {
	cause := errors.New("lat wait: " + ErrTimeout.Error())
	err := error(&DropError{Seq: 7, Cause: cause})

	assert.True(t, errors.Is(err, ErrBusy))
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "7")

	var de *DropError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, uint64(7), de.Seq)

	wrapped := &DropError{Seq: 1, Cause: ErrNoMemory}
	assert.True(t, errors.Is(wrapped, ErrNoMemory))
	assert.False(t, errors.Is(wrapped, ErrTimeout))
}
