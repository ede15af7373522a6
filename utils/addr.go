// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import (
	"fmt"
	"net"

	"github.com/emitter-io/address"
)

// IsLocalhost 请求的远端地址（host:port）是否为本机
func IsLocalhost(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && IsLocalhostIP(ip)
}

// IsLocalhostIP 回环地址或本机的私有地址
func IsLocalhostIP(ip net.IP) bool {
	for _, block := range loopbackBlocks {
		if block.Contains(ip) {
			return true
		}
	}

	privs, err := address.GetPrivate()
	if err != nil {
		return false
	}
	for _, priv := range privs {
		if priv.IP.Equal(ip) {
			return true
		}
	}
	return false
}

var loopbackBlocks = []*net.IPNet{
	mustParseCIDR("127.0.0.0/8"), // RFC 1122
	mustParseCIDR("::1/128"),     // RFC 4291
}

func mustParseCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(fmt.Sprintf("bad CIDR %s: %v", s, err))
	}
	return block
}
