// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
//
// 控制面提交的 AV1 语法元素，字段由上游从 OBU 中解析得到。
//
package av1

import (
	"errors"
)

// SequenceHeader 序列头 OBU 语法元素
type SequenceHeader struct {
	Flags                uint32 `json:"flags"`
	SeqProfile           uint8  `json:"seq_profile"`
	OrderHintBits        uint8  `json:"order_hint_bits"`
	BitDepth             uint8  `json:"bit_depth"`
	MaxFrameWidthMinus1  uint16 `json:"max_frame_width_minus_1"`
	MaxFrameHeightMinus1 uint16 `json:"max_frame_height_minus_1"`
}

// Has 判断标志位
func (seq *SequenceHeader) Has(flag uint32) bool { return seq.Flags&flag != 0 }

// TileInfo tile 划分信息
type TileInfo struct {
	Flags               uint8                   `json:"flags"`
	ContextUpdateTileID uint32                  `json:"context_update_tile_id"`
	TileCols            uint8                   `json:"tile_cols"`
	TileRows            uint8                   `json:"tile_rows"`
	MiColStarts         [MaxTileCols + 1]uint32 `json:"mi_col_starts"`
	MiRowStarts         [MaxTileRows + 1]uint32 `json:"mi_row_starts"`
	WidthInSbsMinus1    [MaxTileCols]uint32     `json:"width_in_sbs_minus_1"`
	HeightInSbsMinus1   [MaxTileRows]uint32     `json:"height_in_sbs_minus_1"`
	TileSizeBytes       uint8                   `json:"tile_size_bytes"`
}

// Quantization 量化参数
type Quantization struct {
	Flags     uint8 `json:"flags"`
	BaseQIdx  uint8 `json:"base_q_idx"`
	DeltaQYDc int8  `json:"delta_q_y_dc"`
	DeltaQUDc int8  `json:"delta_q_u_dc"`
	DeltaQUAc int8  `json:"delta_q_u_ac"`
	DeltaQVDc int8  `json:"delta_q_v_dc"`
	DeltaQVAc int8  `json:"delta_q_v_ac"`
	QmY       uint8 `json:"qm_y"`
	QmU       uint8 `json:"qm_u"`
	QmV       uint8 `json:"qm_v"`
	DeltaQRes uint8 `json:"delta_q_res"`
}

// Segmentation 分段参数
type Segmentation struct {
	Flags           uint8                         `json:"flags"`
	LastActiveSegID uint8                         `json:"last_active_seg_id"`
	FeatureEnabled  [MaxSegments]uint8            `json:"feature_enabled"`
	FeatureData     [MaxSegments][SegLvlMax]int16 `json:"feature_data"`
}

// LoopFilter 环路滤波参数
type LoopFilter struct {
	Flags      uint8                   `json:"flags"`
	Level      [4]uint8                `json:"level"`
	Sharpness  uint8                   `json:"sharpness"`
	RefDeltas  [TotalRefsPerFrame]int8 `json:"ref_deltas"`
	ModeDeltas [2]int8                 `json:"mode_deltas"`
	DeltaLfRes uint8                   `json:"delta_lf_res"`
}

// CDEF 约束方向增强滤波参数
type CDEF struct {
	DampingMinus3 uint8          `json:"damping_minus_3"`
	Bits          uint8          `json:"bits"`
	YPriStrength  [CdefMax]uint8 `json:"y_pri_strength"`
	YSecStrength  [CdefMax]uint8 `json:"y_sec_strength"`
	UVPriStrength [CdefMax]uint8 `json:"uv_pri_strength"`
	UVSecStrength [CdefMax]uint8 `json:"uv_sec_strength"`
}

// LoopRestoration 环路恢复参数
type LoopRestoration struct {
	Flags                uint8                `json:"flags"`
	LrUnitShift          uint8                `json:"lr_unit_shift"`
	LrUVShift            uint8                `json:"lr_uv_shift"`
	FrameRestorationType [NumPlanesMax]uint8  `json:"frame_restoration_type"`
	LoopRestorationSize  [NumPlanesMax]uint32 `json:"loop_restoration_size"`
}

// GlobalMotion 全局运动参数
type GlobalMotion struct {
	Flags   [TotalRefsPerFrame]uint8         `json:"flags"`
	Type    [TotalRefsPerFrame]WarpModelType `json:"type"`
	Params  [TotalRefsPerFrame][6]int32      `json:"params"`
	Invalid uint8                            `json:"invalid"`
}

// FrameHeader 帧头 OBU 语法元素
type FrameHeader struct {
	TileInfo            TileInfo                  `json:"tile_info"`
	Quantization        Quantization              `json:"quantization"`
	SuperresDenom       uint8                     `json:"superres_denom"`
	Segmentation        Segmentation              `json:"segmentation"`
	LoopFilter          LoopFilter                `json:"loop_filter"`
	CDEF                CDEF                      `json:"cdef"`
	SkipModeFrame       [2]uint8                  `json:"skip_mode_frame"`
	PrimaryRefFrame     uint8                     `json:"primary_ref_frame"`
	LoopRestoration     LoopRestoration           `json:"loop_restoration"`
	GlobalMotion        GlobalMotion              `json:"global_motion"`
	Flags               uint32                    `json:"flags"`
	FrameType           FrameType                 `json:"frame_type"`
	OrderHint           uint32                    `json:"order_hint"`
	UpscaledWidth       uint32                    `json:"upscaled_width"`
	InterpolationFilter uint8                     `json:"interpolation_filter"`
	TxMode              uint8                     `json:"tx_mode"`
	FrameWidthMinus1    uint32                    `json:"frame_width_minus_1"`
	FrameHeightMinus1   uint32                    `json:"frame_height_minus_1"`
	RenderWidthMinus1   uint16                    `json:"render_width_minus_1"`
	RenderHeightMinus1  uint16                    `json:"render_height_minus_1"`
	CurrentFrameID      uint32                    `json:"current_frame_id"`
	RefreshFrameFlags   uint8                     `json:"refresh_frame_flags"`
	OrderHints          [TotalRefsPerFrame]uint32 `json:"order_hints"`
	RefOrderHint        [TotalRefsPerFrame]uint32 `json:"ref_order_hint"`
	ReferenceFrameTs    [RefsPerFrame]uint64      `json:"reference_frame_ts"`
	RefFrameIdx         [RefsPerFrame]int8        `json:"ref_frame_idx"`
}

// Has 判断标志位
func (fh *FrameHeader) Has(flag uint32) bool { return fh.Flags&flag != 0 }

// Width 帧宽
func (fh *FrameHeader) Width() uint32 { return fh.FrameWidthMinus1 + 1 }

// Height 帧高
func (fh *FrameHeader) Height() uint32 { return fh.FrameHeightMinus1 + 1 }

// TileGroup tile 组，TgStart..TgEnd 为组内 tile 的编号范围
type TileGroup struct {
	TgStart uint32 `json:"tg_start"`
	TgEnd   uint32 `json:"tg_end"`
}

// TileGroupEntry 单个 tile 在码流中的位置
type TileGroupEntry struct {
	TileOffset uint32 `json:"tile_offset"`
	TileSize   uint32 `json:"tile_size"`
	TileRow    uint32 `json:"tile_row"`
	TileCol    uint32 `json:"tile_col"`
}

// Controls 一帧解码所需的全部控制数据
type Controls struct {
	Sequence         *SequenceHeader  `json:"sequence"`
	Frame            *FrameHeader     `json:"frame"`
	TileGroups       []TileGroup      `json:"tile_groups"`
	TileGroupEntries []TileGroupEntry `json:"tile_group_entries"`
	OperatingMode    OperatingMode    `json:"operating_mode"`
}

// ErrMissingControl 缺少控制数据
var ErrMissingControl = errors.New("av1: missing control data")

// Validate 检查必需的控制项是否齐全
func (c *Controls) Validate() error {
	if c == nil || c.Sequence == nil || c.Frame == nil {
		return ErrMissingControl
	}
	if len(c.TileGroups) == 0 || len(c.TileGroupEntries) == 0 {
		return ErrMissingControl
	}
	return nil
}
