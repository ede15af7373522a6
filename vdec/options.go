// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vdec

import (
	"time"

	"github.com/cnotch/av1vdec/stats"
	"github.com/cnotch/xlog"
)

// 默认值
const (
	DefaultTimeout       = 1000 * time.Millisecond // 等待硬件中断的超时
	DefaultMaxLatRetries = 8
)

// Options 解码器选项
type Options struct {
	LatTimeout    time.Duration
	CoreTimeout   time.Duration
	InnerRacing   bool          // LAT 启动后立即把帧交给 CORE
	MaxLatRetries int           // LAT 输出满时的最大重试次数
	LatBufWait    time.Duration // 等待空闲帧上下文的时长，0 表示不等待
	UbeSize       uint64        // UBE 环形缓冲字节数，0 使用默认值
	Logger        *xlog.Logger
	Stats         stats.Decode
	Observer      func(Event)
}

// Option 配置解码器
type Option interface {
	apply(*Options)
}

// optionFunc 包装函数以便它满足 Option 接口
type optionFunc func(*Options)

func (f optionFunc) apply(o *Options) {
	f(o)
}

// NewOptions 应用选项并补全默认值
func NewOptions(opts ...Option) Options {
	o := Options{
		LatTimeout:    DefaultTimeout,
		CoreTimeout:   DefaultTimeout,
		MaxLatRetries: DefaultMaxLatRetries,
	}
	for _, opt := range opts {
		opt.apply(&o)
	}

	if o.LatTimeout <= 0 {
		o.LatTimeout = DefaultTimeout
	}
	if o.CoreTimeout <= 0 {
		o.CoreTimeout = DefaultTimeout
	}
	if o.MaxLatRetries < 0 {
		o.MaxLatRetries = 0
	}
	if o.Logger == nil {
		o.Logger = xlog.L()
	}
	if o.Stats == nil {
		o.Stats = stats.NewChildDecode(stats.Decodes)
	}
	return o
}

// Timeouts 硬件等待超时选项
func Timeouts(lat, core time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.LatTimeout = lat
		o.CoreTimeout = core
	})
}

// InnerRacing 内部竞速模式选项
func InnerRacing(enable bool) Option {
	return optionFunc(func(o *Options) {
		o.InnerRacing = enable
	})
}

// MaxLatRetries LAT 重试次数选项
func MaxLatRetries(n int) Option {
	return optionFunc(func(o *Options) {
		o.MaxLatRetries = n
	})
}

// LatBufWait 等待空闲帧上下文的时长选项
func LatBufWait(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.LatBufWait = d
	})
}

// UbeSize UBE 环形缓冲大小选项
func UbeSize(n uint64) Option {
	return optionFunc(func(o *Options) {
		o.UbeSize = n
	})
}

// Logger 日志选项
func Logger(l *xlog.Logger) Option {
	return optionFunc(func(o *Options) {
		o.Logger = l
	})
}

// Stats 统计选项
func Stats(s stats.Decode) Option {
	return optionFunc(func(o *Options) {
		o.Stats = s
	})
}

// Observer 帧事件回调选项，回调在解码协程中执行，不能阻塞
func Observer(fn func(Event)) Option {
	return optionFunc(func(o *Options) {
		o.Observer = fn
	})
}
