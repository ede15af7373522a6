// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	cfg "github.com/cnotch/loader"
	"github.com/cnotch/xlog"
)

// 服务名
const (
	Vendor  = "CAOHONGJU"
	Name    = "av1vdec"
	Version = "V1.0.0"
)

var (
	globalC *config
)

// InitConfig 初始化 Config
func InitConfig() {
	exe, err := os.Executable()
	if err != nil {
		xlog.Panic(err.Error())
	}

	configPath := filepath.Join(filepath.Dir(exe), Name+".conf")

	globalC = new(config)
	globalC.initFlags()

	// 创建或加载配置文件
	if err := cfg.Load(globalC,
		&cfg.JSONLoader{Path: configPath, CreatedIfNonExsit: true},
		&cfg.EnvLoader{Prefix: strings.ToUpper(Name)},
		&cfg.FlagLoader{}); err != nil {
		// 异常，直接退出
		xlog.Panic(err.Error())
	}

	// 初始化日志
	globalC.Log.initLogger()
}

// Addr Listen addr
func Addr() string {
	if globalC == nil {
		return ":1554"
	}
	return globalC.ListenAddr
}

// LocalOnly API 是否只允许本机访问
func LocalOnly() bool {
	if globalC == nil {
		return true
	}
	return globalC.LocalOnly
}

// APIRate 每秒允许的 API 请求数
func APIRate() int {
	if globalC == nil || globalC.APIRate < 0 {
		return 0
	}
	return globalC.APIRate
}

// Profile 是否启动 Http Profile
func Profile() bool {
	if globalC == nil {
		return false
	}
	return globalC.Profile
}

// StatsInterval 解码统计日志的间隔，0 不记录
func StatsInterval() time.Duration {
	if globalC == nil || globalC.StatsInterval <= 0 {
		return 0
	}
	return time.Duration(globalC.StatsInterval) * time.Second
}

// GetTLSConfig 获取TLSConfig
func GetTLSConfig() *TLSConfig {
	if globalC == nil {
		return nil
	}
	return globalC.TLS
}

// Decoder 解码器配置
func Decoder() DecoderConfig {
	if globalC == nil {
		return DecoderConfig{Codec: "av1", LatTimeout: 1000, CoreTimeout: 1000,
			UbeSize: 8 * 1024, CaptureBuffers: 12, Planes: 2}
	}
	return globalC.Decoder
}

// NetTimeout 返回网络超时设置
func NetTimeout() time.Duration {
	return time.Second * 45
}

// LoadVPUProvider 加载协处理器提供者
func LoadVPUProvider(providers ...Provider) Provider {
	if globalC == nil {
		return LoadProvider(nil, providers...)
	}
	return LoadProvider(globalC.VPU, providers...)
}
