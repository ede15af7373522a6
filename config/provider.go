// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownProvider 没有与配置同名的内置提供者
var ErrUnknownProvider = errors.New("unknown provider")

// Provider 可按名称选择并配置的组件，例如协处理器
type Provider interface {
	Name() string
	Configure(config map[string]interface{}) error
}

// ProviderConfig 提供者配置
type ProviderConfig struct {
	Provider string                 `json:"provider"`         // 提供者名称
	Config   map[string]interface{} `json:"config,omitempty"` // 提供者私有配置
}

// Load 在 builtins 中按名称（不区分大小写）查找并配置提供者
func (c *ProviderConfig) Load(builtins ...Provider) (Provider, error) {
	for _, builtin := range builtins {
		if !strings.EqualFold(builtin.Name(), c.Provider) {
			continue
		}
		if err := builtin.Configure(c.Config); err != nil {
			return nil, fmt.Errorf("configure provider %q: %w", c.Provider, err)
		}
		return builtin, nil
	}
	return nil, fmt.Errorf("provider %q: %w", c.Provider, ErrUnknownProvider)
}

// LoadProvider 加载提供者，失败时 panic；未配置时使用第一个
func LoadProvider(config *ProviderConfig, providers ...Provider) Provider {
	if config == nil || config.Provider == "" {
		config = &ProviderConfig{Provider: providers[0].Name()}
	}

	provider, err := config.Load(providers...)
	if err != nil {
		panic(err)
	}
	return provider
}
