// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
)

// config 服务配置
type config struct {
	ListenAddr    string          `json:"listen"`         // 服务侦听地址和端口
	LocalOnly     bool            `json:"local_only"`     // 只允许本机访问 API
	APIRate       int             `json:"api_rate"`       // 每秒允许的 API 请求数，0 不限制
	Profile       bool            `json:"profile"`        // 是否启动Profile
	StatsInterval int             `json:"stats_interval"` // 解码统计日志的间隔（秒），0 不记录
	TLS           *TLSConfig      `json:"tls,omitempty"`  // https安全端口交互
	VPU           *ProviderConfig `json:"vpu,omitempty"`  // 协处理器
	Decoder       DecoderConfig   `json:"decoder"`        // 解码器配置
	Log           LogConfig       `json:"log"`            // 日志配置
}

func (c *config) initFlags() {
	// 服务的端口
	flag.StringVar(&c.ListenAddr, "listen", ":1554", "Set server listen address")
	flag.BoolVar(&c.LocalOnly, "local-only", true,
		"Determines if the api only accepts requests from localhost")
	flag.IntVar(&c.APIRate, "api-rate", 200,
		"Set the maximum api requests per second, 0 means unlimited")
	flag.BoolVar(&c.Profile, "pprof", false,
		"Determines if profile enabled")
	flag.IntVar(&c.StatsInterval, "stats-interval", 60,
		"Set the interval in seconds of decode statistics logging")

	// 初始化解码器配置
	c.Decoder.initFlags()
	// 初始化日志配置
	c.Log.initFlags()
}
