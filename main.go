// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"github.com/cnotch/av1vdec/config"
	"github.com/cnotch/av1vdec/firmware/sim"
	"github.com/cnotch/av1vdec/service"
	"github.com/cnotch/av1vdec/vdec/driver"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
)

func main() {
	// 初始化配置
	config.InitConfig()
	// 初始化全局计划任务
	scheduler.SetPanicHandler(func(job *scheduler.ManagedJob, r interface{}) {
		xlog.Errorf("scheduler task panic. tag: %v, recover: %v", job.Tag, r)
	})

	// 协处理器提供者
	dc := config.Decoder()
	codec, err := dc.CodecType()
	if err != nil {
		xlog.L().Panic(err.Error())
	}
	sim.Provider.SetVsiSize(driver.VsiSize(codec))
	vpuProvider := config.LoadVPUProvider(sim.Provider)

	// Start new service
	svc, err := service.NewService(context.Background(), xlog.L(), vpuProvider.(driver.VPUProvider))
	if err != nil {
		xlog.L().Panic(err.Error())
	}

	// Listen and serve
	svc.Listen()
}
