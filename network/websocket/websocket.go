// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package websocket

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessage = 512                 // 客户端只发送控制消息
)

// The default upgrader to use
var upgrader = &websocket.Upgrader{
	Subprotocols: []string{"events"},
	CheckOrigin:  func(r *http.Request) bool { return true },
}

// Conn 只推送文本消息的 websocket 连接
type Conn struct {
	l       sync.Mutex
	socket  *websocket.Conn
	closing chan struct{}
	once    sync.Once
}

// TryUpgrade attempts to upgrade an HTTP request to websocket.
func TryUpgrade(w http.ResponseWriter, r *http.Request) (*Conn, bool) {
	if w == nil || r == nil {
		return nil, false
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, false
	}

	c := &Conn{
		socket:  ws,
		closing: make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()
	return c, true
}

// readLoop 丢弃客户端消息，收到关闭或读错误时结束连接
func (c *Conn) readLoop() {
	defer c.Close()

	c.socket.SetReadLimit(maxMessage)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.socket.NextReader(); err != nil {
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		case <-c.closing:
			return
		}
	}
}

// Write 发送一条文本消息
func (c *Conn) Write(b []byte) (n int, err error) {
	// Serialize write to avoid concurrent write
	c.l.Lock()
	defer c.l.Unlock()

	c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	if err = c.socket.WriteMessage(websocket.TextMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Closing 连接关闭时关闭的通道
func (c *Conn) Closing() <-chan struct{} { return c.closing }

// Close terminates the connection.
func (c *Conn) Close() (err error) {
	c.once.Do(func() {
		close(c.closing)
		err = c.socket.Close()
	})
	return
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.socket.RemoteAddr()
}
