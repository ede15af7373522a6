// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"time"

	"github.com/cnotch/av1vdec/vdec"
)

// DecoderConfig 解码器配置
type DecoderConfig struct {
	// Codec 编码类型
	Codec string `json:"codec"`

	// LatTimeout 等待 LAT 完成的超时，毫秒
	LatTimeout int `json:"lat_timeout"`

	// CoreTimeout 等待 CORE 完成的超时，毫秒
	CoreTimeout int `json:"core_timeout"`

	// InnerRacing LAT 启动后立即把帧交给 CORE
	InnerRacing bool `json:"inner_racing"`

	// MaxLatRetries LAT 输出满时的最大重试次数
	MaxLatRetries int `json:"max_lat_retries"`

	// LatBufWait 等待空闲帧上下文的时长，毫秒
	LatBufWait int `json:"latbuf_wait"`

	// UbeSize UBE 环形缓冲的大小，KB
	UbeSize int `json:"ube_size"`

	// CaptureBuffers 输出缓冲数量
	CaptureBuffers int `json:"capture_buffers"`

	// Planes 每个输出缓冲的平面数，1 或 2
	Planes int `json:"planes"`

	// MemLimit 工作内存上限，MB，0 不限制
	MemLimit int `json:"mem_limit"`
}

func (c *DecoderConfig) initFlags() {
	flag.StringVar(&c.Codec, "codec", "av1", "Set the codec of decoder")
	flag.IntVar(&c.LatTimeout, "lat-timeout", 1000,
		"Set the lat stage timeout in milliseconds")
	flag.IntVar(&c.CoreTimeout, "core-timeout", 1000,
		"Set the core stage timeout in milliseconds")
	flag.BoolVar(&c.InnerRacing, "inner-racing", false,
		"Determines if core starts right after lat starts")
	flag.IntVar(&c.MaxLatRetries, "max-lat-retries", vdec.DefaultMaxLatRetries,
		"Set the maximum retries when lat output buffer is full")
	flag.IntVar(&c.LatBufWait, "latbuf-wait", 0,
		"Set the milliseconds to wait for a free lat buffer")
	flag.IntVar(&c.UbeSize, "ube-size", 8*1024,
		"Set the ube ring buffer size in kilobytes")
	flag.IntVar(&c.CaptureBuffers, "capture-buffers", 12,
		"Set the count of capture buffers")
	flag.IntVar(&c.Planes, "planes", 2, "Set the planes of capture buffer")
	flag.IntVar(&c.MemLimit, "mem-limit", 0,
		"Set the working memory limit in megabytes, 0 means unlimited")
}

// CodecType 配置的编码类型
func (c *DecoderConfig) CodecType() (codec vdec.Codec, err error) {
	err = codec.UnmarshalText([]byte(c.Codec))
	return
}

// Options 解码器选项
func (c *DecoderConfig) Options() []vdec.Option {
	return []vdec.Option{
		vdec.Timeouts(time.Duration(c.LatTimeout)*time.Millisecond,
			time.Duration(c.CoreTimeout)*time.Millisecond),
		vdec.InnerRacing(c.InnerRacing),
		vdec.MaxLatRetries(c.MaxLatRetries),
		vdec.LatBufWait(time.Duration(c.LatBufWait) * time.Millisecond),
		vdec.UbeSize(uint64(c.UbeSize) * 1024),
	}
}
