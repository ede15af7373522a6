// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"sync/atomic"
)

// 全局变量
var (
	Decoders    = NewGauge() // 解码实例
	Subscribers = NewGauge() // 事件订阅连接
)

// GaugeSample 计数采样
type GaugeSample struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// Gauge 打开和关闭计数
type Gauge interface {
	Add() int64
	Release() int64
	GetSample() GaugeSample
}

func (s *GaugeSample) clone() GaugeSample {
	return GaugeSample{
		Total:  atomic.LoadInt64(&s.Total),
		Active: atomic.LoadInt64(&s.Active),
	}
}

type gauge struct {
	sample GaugeSample
}

// NewGauge 新建计数
func NewGauge() Gauge {
	return &gauge{}
}

func (g *gauge) Add() int64 {
	atomic.AddInt64(&g.sample.Total, 1)
	return atomic.AddInt64(&g.sample.Active, 1)
}

func (g *gauge) Release() int64 {
	return atomic.AddInt64(&g.sample.Active, -1)
}

func (g *gauge) GetSample() GaugeSample {
	return g.sample.clone()
}
