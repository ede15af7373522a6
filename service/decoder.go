// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"fmt"
	"sync"

	obu "github.com/cnotch/av1vdec/av/codec/av1"
	"github.com/cnotch/av1vdec/config"
	"github.com/cnotch/av1vdec/vdec"
	"github.com/cnotch/av1vdec/vdec/av1"
	"github.com/cnotch/av1vdec/vdec/driver"
	"github.com/cnotch/xlog"
)

// frameRequest 提交一帧的请求
type frameRequest struct {
	Timestamp uint64        `json:"timestamp"`
	Size      uint64        `json:"size"` // 码流字节数
	Controls  *obu.Controls `json:"controls"`
}

// decoderHost 服务持有的唯一解码实例及其内存与输出队列
type decoderHost struct {
	logger  *xlog.Logger
	alloc   *vdec.HeapAllocator
	capture *vdec.BufferQueue
	dec     vdec.Decoder
	once    sync.Once
}

func newDecoderHost(provider driver.VPUProvider, c config.DecoderConfig, observer func(vdec.Event), l *xlog.Logger) (*decoderHost, error) {
	codec, err := c.CodecType()
	if err != nil {
		return nil, err
	}
	vpu, err := provider.NewVPU()
	if err != nil {
		return nil, fmt.Errorf("vpu provider %s: %w", provider.Name(), err)
	}

	h := &decoderHost{
		logger: l,
		alloc:  vdec.NewHeapAllocator(uint64(c.MemLimit) << 20),
	}
	sizes, err := vpu.FrameBufferSizes(vdec.Align(av1.FHDMaxWidth, 64), vdec.Align(av1.FHDMaxHeight, 64))
	if err != nil {
		return nil, err
	}
	if h.capture, err = vdec.NewBufferQueue(h.alloc, c.CaptureBuffers, c.Planes, sizes, h.onDone); err != nil {
		return nil, err
	}

	opts := append(c.Options(), vdec.Logger(l), vdec.Observer(observer))
	if h.dec, err = driver.New(codec, vpu, h.alloc, h.capture, opts...); err != nil {
		h.capture.Free()
		return nil, err
	}
	l.Infof("%s decoder ready, %d capture buffers", codec, c.CaptureBuffers)
	return h, nil
}

// onDone 没有显示端，输出缓冲完成后直接回收
func (h *decoderHost) onDone(fb *vdec.FrameBuffer, err error) {
	h.capture.Requeue(fb)
}

// Decode 为请求分配码流缓冲并解码
func (h *decoderHost) Decode(ctx context.Context, req *frameRequest) error {
	if req.Size == 0 {
		return fmt.Errorf("empty bitstream: %w", vdec.ErrInvalidParam)
	}
	bs, err := h.alloc.Alloc(req.Size)
	if err != nil {
		return err
	}
	defer h.alloc.Free(&bs)

	return h.dec.Decode(ctx, &vdec.Bitstream{
		Mem:       bs,
		Timestamp: req.Timestamp,
		Controls:  req.Controls,
	})
}

// Flush 等待在途帧完成并复位
func (h *decoderHost) Flush(ctx context.Context) error {
	return h.dec.Decode(ctx, nil)
}

// PicInfo 当前图像信息
func (h *decoderHost) PicInfo() (vdec.PicInfo, error) {
	return h.dec.PicInfo()
}

// Status 解码器状态
func (h *decoderHost) Status() vdec.Status {
	return h.dec.Status()
}

// Close 关闭解码器并释放输出缓冲
func (h *decoderHost) Close() {
	h.once.Do(func() {
		if err := h.dec.Close(); err != nil {
			h.logger.Warnf("close decoder: %v", err)
		}
		h.capture.Free()
	})
}
