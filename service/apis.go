// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cnotch/apirouter"
	"github.com/cnotch/av1vdec/config"
	"github.com/cnotch/av1vdec/network/websocket"
	"github.com/cnotch/av1vdec/stats"
	"github.com/cnotch/av1vdec/utils"
	"github.com/cnotch/av1vdec/vdec"
)

var (
	buffers = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 1024*2))
		},
	}
)

var crossdomainxml = []byte(
	`<?xml version="1.0" ?><cross-domain-policy>
			<allow-access-from domain="*" />
			<allow-http-request-headers-from domain="*" headers="*"/>
		</cross-domain-policy>`)

func (s *Service) initApis(mux *http.ServeMux) {
	api := apirouter.NewForGRPC(
		// 系统信息类API
		apirouter.GET("/api/v1/server", s.onGetServerInfo),
		apirouter.GET("/api/v1/runtime", s.onGetRuntime),

		// 解码器API
		apirouter.GET("/api/v1/decoder", s.onGetDecoder),
		apirouter.POST("/api/v1/decoder/frames", s.onDecodeFrame),
		apirouter.POST("/api/v1/decoder/flush", s.onFlush),
	)

	iterc := apirouter.ChainInterceptor(apirouter.PreInterceptor(s.rateInterceptor),
		apirouter.PreInterceptor(localInterceptor))

	// api add to mux
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if path.Base(r.URL.Path) == "crossdomain.xml" {
			w.Header().Set("Content-Type", "application/xml")
			w.Write(crossdomainxml)
			return
		}

		if iterc.PreHandle(w, r) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			api.ServeHTTP(w, r)
		}
	})

	// 帧事件推送
	mux.HandleFunc("/ws/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if !localInterceptor(w, r) {
			return
		}
		conn, ok := websocket.TryUpgrade(w, r)
		if !ok {
			return // 升级失败时已回复错误
		}
		s.events.Subscribe(conn)
	})
}

// 获取服务信息
func (s *Service) onGetServerInfo(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	type server struct {
		Vendor   string `json:"vendor"`
		Name     string `json:"name"`
		Version  string `json:"version"`
		OS       string `json:"os"`
		Arch     string `json:"arch"`
		StartOn  string `json:"start_on"`
		Duration string `json:"duration"`
	}
	srv := server{
		Vendor:   config.Vendor,
		Name:     config.Name,
		Version:  config.Version,
		OS:       strings.Title(runtime.GOOS),
		Arch:     strings.ToUpper(runtime.GOARCH),
		StartOn:  stats.StartingTime.Format(time.RFC3339Nano),
		Duration: time.Now().Sub(stats.StartingTime).String(),
	}

	if err := jsonTo(w, &srv); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 获取运行时信息
func (s *Service) onGetRuntime(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	type runtime struct {
		On string `json:"on"`
		*stats.Runtime
	}
	rt := runtime{
		On:      time.Now().Format(time.RFC3339Nano),
		Runtime: stats.MeasureRuntime(),
	}

	if err := jsonTo(w, &rt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 获取解码器状态
func (s *Service) onGetDecoder(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	st := s.host.Status()
	if err := jsonTo(w, &st); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 提交一帧
func (s *Service) onDecodeFrame(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.host.Decode(r.Context(), &req); err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	pic, err := s.host.PicInfo()
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	if err := jsonTo(w, &pic); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// flush 解码器
func (s *Service) onFlush(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	if err := s.host.Flush(r.Context()); err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// statusOf 解码错误对应的 http 状态
func statusOf(err error) int {
	switch {
	case errors.Is(err, vdec.ErrInvalidParam):
		return http.StatusBadRequest
	case errors.Is(err, vdec.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, vdec.ErrNoMemory):
		return http.StatusInsufficientStorage
	case errors.Is(err, vdec.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, vdec.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, vdec.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func jsonTo(w io.Writer, o interface{}) error {
	formatted := buffers.Get().(*bytes.Buffer)
	formatted.Reset()
	defer buffers.Put(formatted)

	body, err := json.Marshal(o)
	if err != nil {
		return err
	}

	if err := json.Indent(formatted, body, "", "\t"); err != nil {
		return err
	}

	if _, err := w.Write(formatted.Bytes()); err != nil {
		return err
	}
	return nil
}

func (s *Service) rateInterceptor(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter != nil && s.limiter.Limit() {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return false
	}
	return true
}

func localInterceptor(w http.ResponseWriter, r *http.Request) bool {
	if !config.LocalOnly() {
		return true
	}

	if utils.IsLocalhost(r.RemoteAddr) {
		return true // 继续执行
	}

	http.Error(w, "访问被拒绝，只允许本机访问", http.StatusForbidden)
	return false
}
