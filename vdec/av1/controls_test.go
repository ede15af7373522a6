// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	obu "github.com/cnotch/av1vdec/av/codec/av1"
)

// newControls 单 tile 帧的控制数据
func newControls(ft obu.FrameType, w, h uint32, refresh uint8) *obu.Controls {
	fh := &obu.FrameHeader{
		FrameType:         ft,
		UpscaledWidth:     w,
		FrameWidthMinus1:  w - 1,
		FrameHeightMinus1: h - 1,
		RefreshFrameFlags: refresh,
		PrimaryRefFrame:   obu.PrimaryRefNone,
	}
	fh.TileInfo.Flags = obu.TileInfoFlagUniformTileSpacing
	fh.TileInfo.TileCols = 1
	fh.TileInfo.TileRows = 1
	fh.TileInfo.MiColStarts[1] = MiCols(w)
	fh.TileInfo.MiRowStarts[1] = MiRows(h)

	return &obu.Controls{
		Sequence: &obu.SequenceHeader{
			Flags:                obu.SequenceFlagEnableOrderHint,
			OrderHintBits:        7,
			BitDepth:             8,
			MaxFrameWidthMinus1:  UHDMaxWidth - 1,
			MaxFrameHeightMinus1: UHDMaxHeight - 1,
		},
		Frame:            fh,
		TileGroups:       []obu.TileGroup{{TgStart: 0, TgEnd: 0}},
		TileGroupEntries: []obu.TileGroupEntry{{TileSize: 1000}},
	}
}

// interControls 每个参考都指向 ref 时间戳的帧间帧
func interControls(w, h uint32, refresh uint8, orderHint uint32, ref uint64) *obu.Controls {
	c := newControls(obu.InterFrame, w, h, refresh)
	c.Frame.OrderHint = orderHint
	c.Frame.PrimaryRefFrame = 0
	for i := range c.Frame.ReferenceFrameTs {
		c.Frame.ReferenceFrameTs[i] = ref
	}
	return c
}

// splitTiles 把帧划分为 cols x rows 个均匀 tile
func splitTiles(c *obu.Controls, cols, rows int) {
	ti := &c.Frame.TileInfo
	miCols, miRows := MiCols(c.Frame.UpscaledWidth), MiRows(c.Frame.Height())
	ti.TileCols, ti.TileRows = uint8(cols), uint8(rows)
	for i := 0; i <= cols; i++ {
		ti.MiColStarts[i] = miCols * uint32(i) / uint32(cols)
	}
	for i := 0; i <= rows; i++ {
		ti.MiRowStarts[i] = miRows * uint32(i) / uint32(rows)
	}

	c.TileGroupEntries = c.TileGroupEntries[:0]
	var offset uint32
	for r := 0; r < rows; r++ {
		for col := 0; col < cols; col++ {
			c.TileGroupEntries = append(c.TileGroupEntries, obu.TileGroupEntry{
				TileOffset: offset,
				TileSize:   100,
				TileRow:    uint32(r),
				TileCol:    uint32(col),
			})
			offset += 100
		}
	}
	c.TileGroups = []obu.TileGroup{{TgStart: 0, TgEnd: uint32(cols*rows - 1)}}
}
