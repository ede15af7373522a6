// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package driver 按编码类型创建无状态解码器。
package driver

import (
	"fmt"

	"github.com/cnotch/av1vdec/vdec"
	"github.com/cnotch/av1vdec/vdec/av1"
)

// VPUProvider 协处理器提供者
type VPUProvider interface {
	Name() string
	Configure(config map[string]interface{}) error
	NewVPU() (vdec.VPU, error)
}

// New 创建 codec 对应的解码器
func New(codec vdec.Codec, vpu vdec.VPU, alloc vdec.Allocator, capture vdec.CaptureQueue, opts ...vdec.Option) (vdec.Decoder, error) {
	switch codec {
	case vdec.CodecAV1:
		return av1.New(vpu, alloc, capture, opts...)
	default:
		return nil, fmt.Errorf("driver: codec %s: %w", codec, vdec.ErrUnsupported)
	}
}

// VsiSize codec 的 vsi 字节数，未知编码为 0
func VsiSize(codec vdec.Codec) int {
	if codec == vdec.CodecAV1 {
		return av1.VsiSize
	}
	return 0
}
