// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vdec

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// 错误定义
var (
	// ErrInvalidParam 输入数据或参数非法，帧在提交硬件前被拒绝
	ErrInvalidParam = errors.New("vdec: invalid parameter")
	// ErrNoMemory 资源不足（UBE 已满且无可用空间、内存分配失败）
	ErrNoMemory = errors.New("vdec: insufficient resources")
	// ErrBusy 帧被丢弃或暂时无可用的帧上下文
	ErrBusy = errors.New("vdec: busy")
	// ErrTimeout 硬件在限定时间内没有完成
	ErrTimeout = errors.New("vdec: hardware timeout")
	// ErrUnsupported 不支持的编码或分辨率
	ErrUnsupported = errors.New("vdec: unsupported")
	// ErrAgain LAT 输出缓冲满，需要重新解码该帧
	ErrAgain = errors.New("vdec: try again")
	// ErrClosed 解码器已关闭
	ErrClosed = errors.New("vdec: decoder closed")
)

// DropError LAT 已提交但未能完成的帧；errors.Is 同时匹配 ErrBusy 与原因
type DropError struct {
	Seq   uint64
	Cause error
}

func (e *DropError) Error() string {
	return fmt.Sprintf("vdec: frame %d dropped: %v", e.Seq, e.Cause)
}

// Unwrap 返回丢帧原因
func (e *DropError) Unwrap() error { return e.Cause }

// Is 丢弃的帧总是视为 ErrBusy
func (e *DropError) Is(target error) bool { return target == ErrBusy }

// Codec 解码器支持的编码类型
type Codec int

// 编码常量
const (
	CodecUnknown Codec = iota
	CodecAV1
)

// String returns a upper-case representation of the codec.
func (c Codec) String() string {
	switch c {
	case CodecAV1:
		return "AV1"
	default:
		return "UNKNOWN"
	}
}

// MarshalText marshals the Codec to text.
func (c Codec) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText unmarshals text to a Codec.
func (c *Codec) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "AV1":
		*c = CodecAV1
	default:
		return fmt.Errorf("unrecognized codec: %q", text)
	}
	return nil
}

// Bitstream 一帧输入码流
type Bitstream struct {
	Mem
	Timestamp uint64      // 源缓冲的时间戳，作为参考帧的标识
	Controls  interface{} // 编码相关的控制数据，AV1 为 *av1.Controls
}

// PicInfo 图像信息
type PicInfo struct {
	Width  uint32    `json:"width"`
	Height uint32    `json:"height"`
	BufW   uint32    `json:"buf_w"`
	BufH   uint32    `json:"buf_h"`
	FbSize [2]uint32 `json:"fb_size"`
}

// Rect 裁剪区域
type Rect struct {
	Left   uint32 `json:"left"`
	Top    uint32 `json:"top"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// UbeStatus UBE 环形缓冲的状态
type UbeStatus struct {
	Capacity uint64 `json:"capacity"`
	Write    uint64 `json:"write"`
	Read     uint64 `json:"read"`
}

// Status 解码实例状态
type Status struct {
	Codec    Codec       `json:"codec"`
	Instance int64       `json:"instance"`
	Pic      PicInfo     `json:"pic"`
	Crop     Rect        `json:"crop"`
	Dpb      int         `json:"dpb"`
	LatBufs  int         `json:"lat_bufs"`
	FreeBufs int         `json:"free_bufs"`
	Ube      UbeStatus   `json:"ube"`
	Detail   interface{} `json:"detail,omitempty"` // 编码相关的状态
}

// Decoder 无状态解码器接口
type Decoder interface {
	// Decode 解码一帧；bs 为 nil 时执行 flush
	Decode(ctx context.Context, bs *Bitstream) error
	PicInfo() (PicInfo, error)
	DpbSize() int
	CropInfo() Rect
	Status() Status
	Close() error
}

// Align 按 n（2 的幂）向上对齐
func Align(v, n uint32) uint32 {
	return (v + n - 1) &^ (n - 1)
}
