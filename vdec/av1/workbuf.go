// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"fmt"

	obu "github.com/cnotch/av1vdec/av/codec/av1"
	"github.com/cnotch/av1vdec/vdec"
)

// Tier 工作缓冲的分辨率档位
type Tier int

// 分辨率档位
const (
	TierNone Tier = iota
	TierFHD
	Tier4K
)

// 档位上限与缓冲大小
const (
	FHDMaxWidth   = 1920
	FHDMaxHeight  = 1088
	UHDMaxWidth   = 4096
	UHDMaxHeight  = 2304
	CdfBufSize    = 16 * 1024
	CdfTempSize   = 1024 * 16 * 100
	mvBytesPerSb  = 1024
	segBytesPerSb = 512
	sbSize        = 128
)

var tierNames = [...]string{
	TierNone: "NONE",
	TierFHD:  "FHD",
	Tier4K:   "4K",
}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return "UNKNOWN"
	}
	return tierNames[t]
}

// MarshalText marshals the Tier to text.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// TierOf 帧尺寸对应的档位；超过 4K 档位返回 ErrUnsupported
func TierOf(width, height uint32) (Tier, error) {
	switch {
	case width > UHDMaxWidth || height > UHDMaxHeight:
		return TierNone, fmt.Errorf("resolution %dx%d: %w", width, height, vdec.ErrUnsupported)
	case width > FHDMaxWidth || height > FHDMaxHeight:
		return Tier4K, nil
	default:
		return TierFHD, nil
	}
}

// MaxSize 档位的最大帧尺寸
func (t Tier) MaxSize() (uint32, uint32) {
	switch t {
	case TierFHD:
		return FHDMaxWidth, FHDMaxHeight
	case Tier4K:
		return UHDMaxWidth, UHDMaxHeight
	default:
		return 0, 0
	}
}

// WorkBuffers 按档位分配、在参考槽间共享的工作缓冲
type WorkBuffers struct {
	alloc    vdec.Allocator
	tier     Tier
	Mv       [MaxFrameBufCount]vdec.Mem
	Seg      [MaxFrameBufCount]vdec.Mem
	Cdf      [MaxFrameBufCount]vdec.Mem
	CdfTemp  vdec.Mem
	Tile     vdec.Mem
	allocs   int
	reallocs int
}

// NewWorkBuffers 创建尚未分配的工作缓冲
func NewWorkBuffers(alloc vdec.Allocator) *WorkBuffers {
	return &WorkBuffers{alloc: alloc}
}

// Tier 当前档位
func (wb *WorkBuffers) Tier() Tier { return wb.tier }

// Counts 分配次数与档位切换导致的重新分配次数
func (wb *WorkBuffers) Counts() (allocs, reallocs int) { return wb.allocs, wb.reallocs }

// EnsureCapacity 保证缓冲足以解码 width x height；只在档位变化时重新分配。
// 返回是否发生了分配。分配失败时释放本次已分配的全部缓冲并回到 TierNone
func (wb *WorkBuffers) EnsureCapacity(width, height uint32) (bool, error) {
	tier, err := TierOf(width, height)
	if err != nil {
		return false, err
	}
	if tier == wb.tier {
		return false, nil
	}

	prev := wb.tier
	wb.release()

	maxW, maxH := tier.MaxSize()
	sbs := uint64((maxW+sbSize-1)/sbSize) * uint64((maxH+sbSize-1)/sbSize)
	if err = wb.allocate(sbs); err != nil {
		wb.release()
		wb.tier = TierNone
		return false, fmt.Errorf("work buffers for %s: %w", tier, err)
	}

	wb.tier = tier
	wb.allocs++
	if prev != TierNone {
		wb.reallocs++
	}
	return true, nil
}

func (wb *WorkBuffers) allocate(sbs uint64) (err error) {
	for i := range wb.Mv {
		if wb.Mv[i], err = wb.alloc.Alloc(sbs * mvBytesPerSb); err != nil {
			return
		}
	}
	for i := range wb.Seg {
		if wb.Seg[i], err = wb.alloc.Alloc(sbs * segBytesPerSb); err != nil {
			return
		}
	}
	for i := range wb.Cdf {
		if wb.Cdf[i], err = wb.alloc.Alloc(CdfBufSize); err != nil {
			return
		}
	}
	if wb.CdfTemp, err = wb.alloc.Alloc(CdfTempSize); err != nil {
		return
	}
	wb.Tile, err = wb.alloc.Alloc(TileBufferSize)
	return
}

// ResetSegmentation 无 primary 参考或未启用分段时清零当前槽的分段图
func (wb *WorkBuffers) ResetSegmentation(uh *UncompressedHeader, slot int) bool {
	if slot < 0 || slot >= MaxFrameBufCount {
		return false
	}
	if uh.PrimaryRefFrame == obu.PrimaryRefNone || !uh.Seg.Enabled {
		wb.Seg[slot].Zero()
		return true
	}
	return false
}

func (wb *WorkBuffers) release() {
	for i := range wb.Mv {
		wb.alloc.Free(&wb.Mv[i])
		wb.alloc.Free(&wb.Seg[i])
		wb.alloc.Free(&wb.Cdf[i])
	}
	wb.alloc.Free(&wb.CdfTemp)
	wb.alloc.Free(&wb.Tile)
}

// Free 释放全部缓冲
func (wb *WorkBuffers) Free() {
	wb.release()
	wb.tier = TierNone
}
