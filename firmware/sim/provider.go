// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sim

import (
	"fmt"
	"time"

	"github.com/cnotch/av1vdec/vdec"
)

// Provider 模拟器提供者
var Provider = &provider{}

type provider struct {
	vsiSize   int
	latDelay  time.Duration
	coreDelay time.Duration
}

func (p *provider) Name() string {
	return "sim"
}

// Configure 支持 vsi_size、lat_delay_ms 和 core_delay_ms
func (p *provider) Configure(config map[string]interface{}) error {
	for key, v := range config {
		n, ok := v.(float64)
		if !ok {
			return fmt.Errorf("invalid sim vpu config, %s attr: %v", key, v)
		}
		switch key {
		case "vsi_size":
			p.vsiSize = int(n)
		case "lat_delay_ms":
			p.latDelay = time.Duration(n) * time.Millisecond
		case "core_delay_ms":
			p.coreDelay = time.Duration(n) * time.Millisecond
		default:
			return fmt.Errorf("unknown sim vpu config attr: %s", key)
		}
	}
	return nil
}

// SetVsiSize 未配置时使用的 vsi 大小
func (p *provider) SetVsiSize(n int) {
	if p.vsiSize == 0 {
		p.vsiSize = n
	}
}

// NewVPU 每个解码实例一个模拟器
func (p *provider) NewVPU() (vdec.VPU, error) {
	v := New(p.vsiSize)
	v.SetDelay(vdec.StageLat, p.latDelay)
	v.SetDelay(vdec.StageCore, p.coreDelay)
	return v, nil
}
