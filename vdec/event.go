// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vdec

import (
	"time"
)

// FrameState 帧在两阶段流水线中的状态
type FrameState int32

// 帧状态
const (
	FrameIdle FrameState = iota
	FrameLatSetup
	FrameLatRunning
	FrameLatDone
	FrameLatRetry
	FrameCoreQueued
	FrameCoreRunning
	FrameCoreDone
)

var frameStateNames = [...]string{
	FrameIdle:        "IDLE",
	FrameLatSetup:    "LAT_SETUP",
	FrameLatRunning:  "LAT_RUNNING",
	FrameLatDone:     "LAT_DONE",
	FrameLatRetry:    "LAT_RETRY",
	FrameCoreQueued:  "CORE_QUEUED",
	FrameCoreRunning: "CORE_RUNNING",
	FrameCoreDone:    "CORE_DONE",
}

func (s FrameState) String() string {
	if s < 0 || int(s) >= len(frameStateNames) {
		return "UNKNOWN"
	}
	return frameStateNames[s]
}

// MarshalText marshals the FrameState to text.
func (s FrameState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event 帧状态变化事件
type Event struct {
	Time      time.Time  `json:"time"`
	Codec     Codec      `json:"codec"`
	Instance  int64      `json:"instance"`
	Seq       uint64     `json:"seq"`
	Timestamp uint64     `json:"timestamp"`
	State     FrameState `json:"state"`
	Slot      int        `json:"slot"`
	Retries   int        `json:"retries,omitempty"`
	Crc       []uint32   `json:"crc,omitempty"`
	Error     string     `json:"error,omitempty"`
}
