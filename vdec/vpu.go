// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vdec

import (
	"context"
	"time"
)

// Stage 硬件流水线阶段
type Stage int

// 流水线阶段
const (
	StageLat Stage = iota
	StageCore
)

func (s Stage) String() string {
	if s == StageCore {
		return "CORE"
	}
	return "LAT"
}

// InitInfo 固件初始化时返回的信息
type InitInfo struct {
	Architecture uint32
	VsiSize      int    // 固件期望的 vsi 字节数
	CdfTable     []byte // 默认 CDF 表
	IqTable      []byte // 反量化表
}

// VPU 协处理器接口，消息传递的具体实现不属于本层
type VPU interface {
	// Init 初始化解码实例
	Init(codec Codec) (*InitInfo, error)
	// WriteVSI 把参数块写入该阶段的共享区域
	WriteVSI(stage Stage, vsi []byte) error
	// Start 启动该阶段的解码
	Start(stage Stage) error
	// Wait 等待该阶段的完成信号，超时返回 ErrTimeout
	Wait(ctx context.Context, stage Stage, timeout time.Duration) error
	// SetTimeout 在共享状态中标记超时，固件据此中止
	SetTimeout(stage Stage) error
	// ReadVSI 读回固件写入的公共头部
	ReadVSI(stage Stage) ([]byte, error)
	// End 结束该阶段
	End(stage Stage) error
	// Reset 复位硬件
	Reset() error
	// FrameBufferSizes 指定分辨率下各平面的大小
	FrameBufferSizes(width, height uint32) ([2]uint32, error)
	// Deinit 释放解码实例
	Deinit() error
}
