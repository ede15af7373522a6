// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cnotch/av1vdec/config"
	"github.com/cnotch/av1vdec/stats"
	"github.com/cnotch/av1vdec/vdec/driver"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
	"github.com/emitter-io/address"
	"github.com/kelindar/rate"
)

// Service 网络服务对象(服务的入口)
type Service struct {
	context context.Context
	cancel  context.CancelFunc
	logger  *xlog.Logger
	http    *http.Server
	limiter *rate.Limiter
	events  *eventHub
	host    *decoderHost
}

// NewService 创建服务
func NewService(ctx context.Context, l *xlog.Logger, provider driver.VPUProvider) (s *Service, err error) {
	ctx, cancel := context.WithCancel(ctx)
	s = &Service{
		context: ctx,
		cancel:  cancel,
		logger:  l,
		http:    new(http.Server),
		events:  newEventHub(l),
	}
	if n := config.APIRate(); n > 0 {
		s.limiter = rate.New(n, time.Second)
	}

	s.host, err = newDecoderHost(provider, config.Decoder(), s.events.Publish, l)
	if err != nil {
		cancel()
		return nil, err
	}

	// 设置 http 的Handler
	mux := http.NewServeMux()

	if config.Profile() {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.initApis(mux)
	s.http.Handler = mux

	// 定时记录解码统计
	if interval := config.StatsInterval(); interval > 0 {
		scheduler.PeriodFunc(interval, interval, func() {
			sample := stats.Decodes.GetSample()
			s.logger.Infof("decode stats: frames %d, decoded %d, dropped %d, lat retries %d, timeouts %d/%d",
				sample.Frames, sample.Decoded, sample.Dropped, sample.LatRetries,
				sample.LatTimeouts, sample.CoreTimeouts)
		}, "The task of decode statistics logging")
	}

	s.logger.Info("service configured")
	return s, nil
}

// Listen starts the service.
func (s *Service) Listen() (err error) {
	defer s.Close()
	s.hookSignals()

	addr, err := address.Parse(config.Addr(), 1554)
	if err != nil {
		s.logger.Panic(err.Error())
	}

	s.listen(addr, nil)

	// https wss
	tlsconf := config.GetTLSConfig()
	if tlsconf != nil {
		tls, err := tlsconf.Load()
		if err == nil {
			if tlsAddr, err := address.Parse(tlsconf.ListenAddr, 443); err == nil {
				s.listen(tlsAddr, tls)
			}
		} else {
			s.logger.Warnf("tls disabled: %v", err)
		}
	}

	s.logger.Infof("service started(%s).", config.Version)
	<-s.context.Done()
	return nil
}

// listen configures an main listener on a specified address.
func (s *Service) listen(addr *net.TCPAddr, conf *tls.Config) {
	s.logger.Infof("starting the listener, addr = %s.", addr.String())

	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		s.logger.Panic(err.Error())
	}
	if conf != nil {
		l = tls.NewListener(l, conf)
	}

	go func() {
		if err := s.http.Serve(l); err != nil && err != http.ErrServerClosed {
			s.logger.Error(err.Error())
		}
	}()
}

// Close closes gracefully the service.,
func (s *Service) Close() {
	if s.cancel != nil {
		s.cancel()
	}

	// 停止计划任务
	jobs := scheduler.Jobs()
	for _, job := range jobs {
		job.Cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.NetTimeout())
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warnf("http shutdown: %v", err)
	}
	s.events.Close()
	s.host.Close()
}

// OnSignal starts the signal processing and makes su
func (s *Service) hookSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range c {
			s.onSignal(sig)
		}
	}()
}

// OnSignal will be called when a OS-level signal is received.
func (s *Service) onSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGTERM:
		fallthrough
	case syscall.SIGINT:
		s.logger.Warn(fmt.Sprintf("received signal %s, exiting...", sig.String()))
		s.Close()
		os.Exit(0)
	}
}
