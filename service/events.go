// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"encoding/json"
	"sync"

	"github.com/cnotch/av1vdec/network/websocket"
	"github.com/cnotch/av1vdec/stats"
	"github.com/cnotch/av1vdec/vdec"
	"github.com/cnotch/xlog"
)

const subscriberQueueLen = 256

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// eventHub 把帧事件广播给 websocket 订阅者；订阅者过慢时丢弃事件
type eventHub struct {
	l      sync.RWMutex
	logger *xlog.Logger
	subs   map[*subscriber]struct{}
	closed bool
}

func newEventHub(l *xlog.Logger) *eventHub {
	return &eventHub{
		logger: l,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish 作为解码器的 Observer，不能阻塞
func (h *eventHub) Publish(e vdec.Event) {
	h.l.RLock()
	defer h.l.RUnlock()
	if len(h.subs) == 0 {
		return
	}

	b, err := json.Marshal(&e)
	if err != nil {
		h.logger.Errorf("marshal event: %v", err)
		return
	}
	for sub := range h.subs {
		select {
		case sub.send <- b:
		default:
		}
	}
}

// Subscribe 登记连接并启动发送协程
func (h *eventHub) Subscribe(conn *websocket.Conn) {
	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, subscriberQueueLen),
	}

	h.l.Lock()
	if h.closed {
		h.l.Unlock()
		conn.Close()
		return
	}
	h.subs[sub] = struct{}{}
	h.l.Unlock()

	stats.Subscribers.Add()
	h.logger.Infof("event subscriber %s joined", conn.RemoteAddr())
	go h.serve(sub)
}

func (h *eventHub) serve(sub *subscriber) {
	defer func() {
		h.l.Lock()
		delete(h.subs, sub)
		h.l.Unlock()
		sub.conn.Close()
		stats.Subscribers.Release()
		h.logger.Infof("event subscriber %s left", sub.conn.RemoteAddr())
	}()

	for {
		select {
		case b := <-sub.send:
			if _, err := sub.conn.Write(b); err != nil {
				return
			}
		case <-sub.conn.Closing():
			return
		}
	}
}

// Close 断开全部订阅者
func (h *eventHub) Close() {
	h.l.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.l.Unlock()

	for _, sub := range subs {
		sub.conn.Close()
	}
}
