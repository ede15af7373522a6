// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	obu "github.com/cnotch/av1vdec/av/codec/av1"
)

// ReferenceMode 参考模式
type ReferenceMode uint8

// 参考模式
const (
	SingleReference     ReferenceMode = 0
	CompoundReference   ReferenceMode = 1
	ReferenceModeSelect ReferenceMode = 2
)

// ScaleFactors 参考帧的缩放系数
type ScaleFactors struct {
	IsScaled bool  `json:"is_scaled"`
	XScale   int32 `json:"x_scale"`
	YScale   int32 `json:"y_scale"`
	XStep    int32 `json:"x_step"`
	YStep    int32 `json:"y_step"`
}

// FrameRefs 当前帧的一个参考
type FrameRefs struct {
	RefFbIdx     int          `json:"ref_fb_idx"`
	RefMapIdx    int          `json:"ref_map_idx"`
	ScaleFactors ScaleFactors `json:"scale_factors"`
}

// GlobalMotionParams 全局运动参数及其 shear 结果
type GlobalMotionParams struct {
	WmType  obu.WarpModelType `json:"wmtype"`
	WmMat   [8]int32          `json:"wmmat"`
	Alpha   int16             `json:"alpha"`
	Beta    int16             `json:"beta"`
	Gamma   int16             `json:"gamma"`
	Delta   int16             `json:"delta"`
	Invalid bool              `json:"invalid"`
}

// SkipMode skip mode 参数
type SkipMode struct {
	Allowed bool     `json:"skip_mode_allowed"`
	Present bool     `json:"skip_mode_present"`
	Frame   [2]int32 `json:"skip_mode_frame"`
}

// Segmentation 分段参数
type Segmentation struct {
	Enabled            bool                                  `json:"segmentation_enabled"`
	UpdateMap          bool                                  `json:"segmentation_update_map"`
	TemporalUpdate     bool                                  `json:"segmentation_temporal_update"`
	UpdateData         bool                                  `json:"segmentation_update_data"`
	FeatureData        [obu.MaxSegments][obu.SegLvlMax]int32 `json:"feature_data"`
	FeatureEnabledMask [obu.MaxSegments]uint16               `json:"feature_enabled_mask"`
	SegIDPreSkip       bool                                  `json:"segid_preskip"`
	LastActiveSegID    int32                                 `json:"last_active_segid"`
}

// DeltaQLf delta q 与 delta lf 参数
type DeltaQLf struct {
	DeltaQPresent  bool  `json:"delta_q_present"`
	DeltaQRes      uint8 `json:"delta_q_res"`
	DeltaLfPresent bool  `json:"delta_lf_present"`
	DeltaLfRes     uint8 `json:"delta_lf_res"`
	DeltaLfMulti   bool  `json:"delta_lf_multi"`
}

// Quantization 量化参数
type Quantization struct {
	BaseQIdx     int32                  `json:"base_q_idx"`
	QIndex       [obu.MaxSegments]int32 `json:"qindex"`
	DeltaQYDc    int32                  `json:"delta_qydc"`
	DeltaQUDc    int32                  `json:"delta_qudc"`
	DeltaQUAc    int32                  `json:"delta_quac"`
	DeltaQVDc    int32                  `json:"delta_qvdc"`
	DeltaQVAc    int32                  `json:"delta_qvac"`
	UsingQmatrix bool                   `json:"using_qmatrix"`
	QmY          uint8                  `json:"qm_y"`
	QmU          uint8                  `json:"qm_u"`
	QmV          uint8                  `json:"qm_v"`
}

// LoopRestoration 环路恢复参数
type LoopRestoration struct {
	UseLr                bool                     `json:"use_lr"`
	UseChromaLr          bool                     `json:"use_chroma_lr"`
	FrameRestorationType [obu.NumPlanesMax]uint8  `json:"frame_restoration_type"`
	LoopRestorationSize  [obu.NumPlanesMax]uint32 `json:"loop_restoration_size"`
}

// LoopFilter 环路滤波参数
type LoopFilter struct {
	Level        [4]uint8                     `json:"loop_filter_level"`
	RefDeltas    [obu.TotalRefsPerFrame]int32 `json:"loop_filter_ref_deltas"`
	ModeDeltas   [4]int32                     `json:"loop_filter_mode_deltas"`
	Sharpness    uint8                        `json:"loop_filter_sharpness"`
	DeltaEnabled bool                         `json:"loop_filter_delta_enabled"`
}

// CDEF CDEF 参数，强度为 pri<<2 | sec
type CDEF struct {
	Damping    uint8              `json:"cdef_damping"`
	YStrength  [obu.CdefMax]uint8 `json:"cdef_y_strength"`
	UVStrength [obu.CdefMax]uint8 `json:"cdef_uv_strength"`
	Bits       uint8              `json:"cdef_bits"`
}

// MotionFieldMV 运动场参数，由固件填写
type MotionFieldMV struct {
	ValidRef    [3]uint32 `json:"mfmv_valid_ref"`
	Dir         [3]uint32 `json:"mfmv_dir"`
	RefToCur    [3]int32  `json:"mfmv_ref_to_cur"`
	RefFrameIdx [3]int32  `json:"mfmv_ref_frame_idx"`
	Count       int32     `json:"mfmv_count"`
}

// Tile tile 划分，起始位置以超级块为单位
type Tile struct {
	TileCols            int32                       `json:"tile_cols"`
	TileRows            int32                       `json:"tile_rows"`
	MiColStarts         [obu.MaxTileCols + 1]uint32 `json:"mi_col_starts"`
	MiRowStarts         [obu.MaxTileRows + 1]uint32 `json:"mi_row_starts"`
	ContextUpdateTileID uint32                      `json:"context_update_tile_id"`
	UniformTileSpacing  bool                        `json:"uniform_tile_spacing_flag"`
}

// UncompressedHeader 转换后的帧头
type UncompressedHeader struct {
	UseRefFrameMvs           bool                                      `json:"use_ref_frame_mvs"`
	OrderHint                uint32                                    `json:"order_hint"`
	GM                       [obu.TotalRefsPerFrame]GlobalMotionParams `json:"gm"`
	UpscaledWidth            uint32                                    `json:"upscaled_width"`
	FrameWidth               uint32                                    `json:"frame_width"`
	FrameHeight              uint32                                    `json:"frame_height"`
	ReducedTxSet             bool                                      `json:"reduced_tx_set"`
	TxMode                   uint8                                     `json:"tx_mode"`
	UniformTileSpacing       bool                                      `json:"uniform_tile_spacing_flag"`
	InterpolationFilter      uint8                                     `json:"interpolation_filter"`
	AllowWarpedMotion        bool                                      `json:"allow_warped_motion"`
	IsMotionModeSwitchable   bool                                      `json:"is_motion_mode_switchable"`
	ReferenceMode            ReferenceMode                             `json:"reference_mode"`
	AllowHighPrecisionMv     bool                                      `json:"allow_high_precision_mv"`
	AllowIntraBC             bool                                      `json:"allow_intra_bc"`
	ForceIntegerMv           bool                                      `json:"force_integer_mv"`
	AllowScreenContentTools  bool                                      `json:"allow_screen_content_tools"`
	ErrorResilientMode       bool                                      `json:"error_resilient_mode"`
	FrameType                obu.FrameType                             `json:"frame_type"`
	PrimaryRefFrame          uint8                                     `json:"primary_ref_frame"`
	RefreshFrameFlags        uint8                                     `json:"refresh_frame_flags"`
	DisableFrameEndUpdateCdf bool                                      `json:"disable_frame_end_update_cdf"`
	DisableCdfUpdate         bool                                      `json:"disable_cdf_update"`
	SkipMode                 SkipMode                                  `json:"skip_mode"`
	Seg                      Segmentation                              `json:"seg"`
	DeltaQLf                 DeltaQLf                                  `json:"delta_q_lf"`
	Quant                    Quantization                              `json:"quant"`
	Lr                       LoopRestoration                           `json:"lr"`
	SuperresDenom            uint32                                    `json:"superres_denom"`
	LoopFilter               LoopFilter                                `json:"loop_filter"`
	CDEF                     CDEF                                      `json:"cdef"`
	Mfmv                     MotionFieldMV                             `json:"mfmv"`
	Tile                     Tile                                      `json:"tile"`
	FrameRefs                [obu.RefsPerFrame]FrameRefs               `json:"frame_refs"`
	FrameIsIntra             bool                                      `json:"frame_is_intra"`
	LosslessArray            [obu.MaxSegments]bool                     `json:"loss_less_array"`
	CodedLossless            bool                                      `json:"coded_loss_less"`
	MiRows                   uint32                                    `json:"mi_rows"`
	MiCols                   uint32                                    `json:"mi_cols"`
}

// SequenceHeader 转换后的序列头
type SequenceHeader struct {
	BitDepth                 uint8  `json:"bitdepth"`
	EnableSuperres           bool   `json:"enable_superres"`
	EnableFilterIntra        bool   `json:"enable_filter_intra"`
	EnableIntraEdgeFilter    bool   `json:"enable_intra_edge_filter"`
	EnableInterintraCompound bool   `json:"enable_interintra_compound"`
	EnableMaskedCompound     bool   `json:"enable_masked_compound"`
	EnableDualFilter         bool   `json:"enable_dual_filter"`
	EnableJntComp            bool   `json:"enable_jnt_comp"`
	MonoChrome               bool   `json:"mono_chrome"`
	EnableOrderHint          bool   `json:"enable_order_hint"`
	OrderHintBits            uint8  `json:"order_hint_bits"`
	Use128x128Superblock     bool   `json:"use_128x128_superblock"`
	SubsamplingX             bool   `json:"subsampling_x"`
	SubsamplingY             bool   `json:"subsampling_y"`
	MaxFrameWidth            uint32 `json:"max_frame_width"`
	MaxFrameHeight           uint32 `json:"max_frame_height"`
}

// Frame 当前帧的全部转换结果
type Frame struct {
	UH               UncompressedHeader          `json:"uh"`
	Seq              SequenceHeader              `json:"seq"`
	LargeScaleTile   bool                        `json:"large_scale_tile"`
	CurTs            uint64                      `json:"cur_ts"`
	PrevFbIdx        int                         `json:"prev_fb_idx"`
	RefFrameSignBias [obu.TotalRefsPerFrame]bool `json:"ref_frame_sign_bias"`
	OrderHints       [obu.RefsPerFrame]uint32    `json:"order_hints"`
	RefFrameValid    [obu.RefsPerFrame]bool      `json:"ref_frame_valid"`
	FrameRefs        [obu.RefsPerFrame]FrameRefs `json:"frame_refs"`
}
