// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"crypto/tls"
	"errors"
	"io/ioutil"
	"path/filepath"
	"strings"
)

// TLSConfig API 的 https 侦听配置
type TLSConfig struct {
	ListenAddr  string `json:"listen"`
	Certificate string `json:"cert"` // 证书文件或 PEM 文本
	PrivateKey  string `json:"key"`  // 私钥文件或 PEM 文本
}

// Load 加载证书和私钥
func (c *TLSConfig) Load() (*tls.Config, error) {
	if c.PrivateKey == "" || c.Certificate == "" {
		return nil, errors.New("no certificate or private key configured")
	}

	cert, err := pemOrFile(c.Certificate)
	if err != nil {
		return nil, err
	}
	key, err := pemOrFile(c.PrivateKey)
	if err != nil {
		return nil, err
	}

	pair, err := tls.X509KeyPair(cert, key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{pair}}, nil
}

// pemOrFile 以 "---" 开头的视为 PEM 文本，否则按相对可执行文件目录的路径读取
func pemOrFile(s string) ([]byte, error) {
	if strings.HasPrefix(s, "---") {
		return []byte(s), nil
	}
	path, err := filepath.Abs(s)
	if err != nil {
		return nil, err
	}
	return ioutil.ReadFile(path)
}
