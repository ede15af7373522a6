// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"encoding/binary"
	"fmt"

	obu "github.com/cnotch/av1vdec/av/codec/av1"
	"github.com/cnotch/av1vdec/vdec"
)

// tile 记录常量
const (
	TileRecordSize = 64 // 每个 tile 记录的字节数
	TileBufferSize = TileRecordSize * obu.MaxTileCount
)

// TileGroup 校验后的 tile 组信息
type TileGroup struct {
	NumTiles        int
	LastInGroup     []bool
	TileSize        []uint32
	TileStartOffset []uint32
}

// NewTileGroup 按当前帧的 tile 网格校验 tile 组与 tile 条目。
// 任何不一致都返回 ErrInvalidParam，且不产生部分结果
func NewTileGroup(tile *Tile, groups []obu.TileGroup, entries []obu.TileGroupEntry) (*TileGroup, error) {
	numTiles := int(tile.TileCols) * int(tile.TileRows)
	if numTiles != len(entries) || numTiles > obu.MaxTileCount {
		return nil, fmt.Errorf("tile group: %w: %d entries for %d tiles",
			vdec.ErrInvalidParam, len(entries), numTiles)
	}

	tg := &TileGroup{
		NumTiles:        numTiles,
		LastInGroup:     make([]bool, numTiles),
		TileSize:        make([]uint32, numTiles),
		TileStartOffset: make([]uint32, numTiles),
	}

	for i := range groups {
		end := groups[i].TgEnd
		if end >= uint32(numTiles) {
			return nil, fmt.Errorf("tile group: %w: tg_end %d not less than %d tiles",
				vdec.ErrInvalidParam, end, numTiles)
		}
		tg.LastInGroup[end] = true
	}

	for i := range entries {
		e := &entries[i]
		if uint32(i) != e.TileRow*uint32(tile.TileCols)+e.TileCol {
			return nil, fmt.Errorf("tile group: %w: entry %d at row %d col %d",
				vdec.ErrInvalidParam, i, e.TileRow, e.TileCol)
		}
		tg.TileSize[i] = e.TileSize
		tg.TileStartOffset[i] = e.TileOffset
	}
	return tg, nil
}

// TileRecord 一个 tile 记录的前 5 个字，其余字节为 0
type TileRecord [5]uint32

// Records 计算每个 tile 的记录；bsAddr 为码流的设备地址
func (tg *TileGroup) Records(uh *UncompressedHeader, bsAddr uint64) []TileRecord {
	tile := &uh.Tile
	var allowUpdateCdf uint32
	if !uh.DisableCdfUpdate {
		allowUpdateCdf = 1
	}
	pa := uint32(bsAddr)
	cols := int(tile.TileCols)

	records := make([]TileRecord, tg.NumTiles)
	for n := range records {
		row, col := n/cols, n%cols
		r := &records[n]
		tilePa := pa + tg.TileStartOffset[n]
		sbxm1 := (tile.MiColStarts[col+1] - tile.MiColStarts[col] - 1) & 0x3F
		sbym1 := (tile.MiRowStarts[row+1] - tile.MiRowStarts[row] - 1) & 0x1FF

		r[0] = tg.TileSize[n] << 3
		r[1] = (tilePa >> 4) << 4
		r[2] = (tilePa % 16) << 3
		r[3] = sbym1<<7 | sbxm1
		r[4] = allowUpdateCdf << 18
		if tg.LastInGroup[n] {
			r[4] |= 1 << 16
		}
		if uint32(n) == tile.ContextUpdateTileID && !uh.DisableFrameEndUpdateCdf {
			r[4] |= 1 << 17
		}
	}
	return records
}

// WriteRecords 把记录写入 tile 缓冲，返回写入的字节数
func WriteRecords(dst []byte, records []TileRecord) (int, error) {
	n := len(records) * TileRecordSize
	if n > len(dst) {
		return 0, fmt.Errorf("tile buffer: %w: need %d bytes, have %d",
			vdec.ErrNoMemory, n, len(dst))
	}

	for i := range records {
		rec := dst[i*TileRecordSize : (i+1)*TileRecordSize]
		for j := range rec {
			rec[j] = 0
		}
		for j, w := range records[i] {
			binary.LittleEndian.PutUint32(rec[j*4:], w)
		}
	}
	return n, nil
}
