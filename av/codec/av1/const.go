// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"fmt"
	"strings"
)

// AV1 限制常量
const (
	MaxSegments       = 8  // 最大分段数
	SegLvlMax         = 8  // 每个分段的特性数
	NumPlanesMax      = 3  // 最大平面数
	CdefMax           = 8  // CDEF 强度表项数
	MaxTileCols       = 64 // 最大 tile 列数
	MaxTileRows       = 64 // 最大 tile 行数
	MaxTileCount      = 4096
	TotalRefsPerFrame = 8 // 参考帧映射表项数
	RefsPerFrame      = 7 // 每帧可用参考数
	PrimaryRefNone    = 7 // primary_ref_frame 无效值
	MaxQIndex         = 255
)

// 参考帧类型
const (
	RefIntraFrame   = 0
	RefLastFrame    = 1
	RefLast2Frame   = 2
	RefLast3Frame   = 3
	RefGoldenFrame  = 4
	RefBwdrefFrame  = 5
	RefAltref2Frame = 6
	RefAltrefFrame  = 7
)

// 分段特性
const (
	SegLvlAltQ      = 0
	SegLvlAltLfYV   = 1
	SegLvlRefFrame  = 5
	SegLvlRefSkip   = 6
	SegLvlRefGlobal = 7
)

// WarpModelType 全局运动模型类型
type WarpModelType uint8

// 全局运动模型
const (
	WarpModelIdentity WarpModelType = iota
	WarpModelTranslation
	WarpModelRotZoom
	WarpModelAffine
)

// FrameType AV1 帧类型
type FrameType uint8

// 帧类型常量
const (
	KeyFrame       FrameType = 0
	InterFrame     FrameType = 1
	IntraOnlyFrame FrameType = 2
	SwitchFrame    FrameType = 3
)

// String returns a lower-case representation of the frame type.
func (ft FrameType) String() string {
	switch ft {
	case KeyFrame:
		return "key"
	case InterFrame:
		return "inter"
	case IntraOnlyFrame:
		return "intra_only"
	case SwitchFrame:
		return "switch"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(ft))
	}
}

// IsIntra 是否帧内帧
func (ft FrameType) IsIntra() bool {
	return ft == KeyFrame || ft == IntraOnlyFrame
}

// MarshalText marshals the FrameType to text.
func (ft FrameType) MarshalText() ([]byte, error) {
	return []byte(ft.String()), nil
}

// UnmarshalText unmarshals text to a FrameType.
func (ft *FrameType) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "key", "0":
		*ft = KeyFrame
	case "inter", "1":
		*ft = InterFrame
	case "intra_only", "2":
		*ft = IntraOnlyFrame
	case "switch", "3":
		*ft = SwitchFrame
	default:
		return fmt.Errorf("unrecognized av1 frame type: %q", text)
	}
	return nil
}

// OperatingMode 解码操作模式
type OperatingMode uint8

// 操作模式
const (
	OperatingModeGeneral OperatingMode = iota
	OperatingModeLargeScaleTile
)

// SequenceHeader 标志位
const (
	SequenceFlagStillPicture             = 0x00000001
	SequenceFlagUse128x128Superblock     = 0x00000002
	SequenceFlagEnableFilterIntra        = 0x00000004
	SequenceFlagEnableIntraEdgeFilter    = 0x00000008
	SequenceFlagEnableInterintraCompound = 0x00000010
	SequenceFlagEnableMaskedCompound     = 0x00000020
	SequenceFlagEnableWarpedMotion       = 0x00000040
	SequenceFlagEnableDualFilter         = 0x00000080
	SequenceFlagEnableOrderHint          = 0x00000100
	SequenceFlagEnableJntComp            = 0x00000200
	SequenceFlagEnableRefFrameMvs        = 0x00000400
	SequenceFlagEnableSuperres           = 0x00000800
	SequenceFlagEnableCdef               = 0x00001000
	SequenceFlagEnableRestoration        = 0x00002000
	SequenceFlagMonoChrome               = 0x00004000
	SequenceFlagColorRange               = 0x00008000
	SequenceFlagSubsamplingX             = 0x00010000
	SequenceFlagSubsamplingY             = 0x00020000
	SequenceFlagFilmGrainParamsPresent   = 0x00040000
	SequenceFlagSeparateUVDeltaQ         = 0x00080000
)

// FrameHeader 标志位
const (
	FrameFlagShowFrame                 = 0x00000001
	FrameFlagShowableFrame             = 0x00000002
	FrameFlagErrorResilientMode        = 0x00000004
	FrameFlagDisableCdfUpdate          = 0x00000008
	FrameFlagAllowScreenContentTools   = 0x00000010
	FrameFlagForceIntegerMv            = 0x00000020
	FrameFlagAllowIntrabc              = 0x00000040
	FrameFlagUseSuperres               = 0x00000080
	FrameFlagAllowHighPrecisionMv      = 0x00000100
	FrameFlagIsMotionModeSwitchable    = 0x00000200
	FrameFlagUseRefFrameMvs            = 0x00000400
	FrameFlagDisableFrameEndUpdateCdf  = 0x00000800
	FrameFlagAllowWarpedMotion         = 0x00001000
	FrameFlagReferenceSelect           = 0x00002000
	FrameFlagReducedTxSet              = 0x00004000
	FrameFlagSkipModeAllowed           = 0x00008000
	FrameFlagSkipModePresent           = 0x00010000
	FrameFlagFrameSizeOverride         = 0x00020000
	FrameFlagBufferRemovalTimePresent  = 0x00040000
	FrameFlagFrameRefsShortSignaling   = 0x00080000
)

// 子结构标志位
const (
	SegmentationFlagEnabled        = 0x01
	SegmentationFlagUpdateMap      = 0x02
	SegmentationFlagTemporalUpdate = 0x04
	SegmentationFlagUpdateData     = 0x08
	SegmentationFlagSegIDPreSkip   = 0x10

	QuantizationFlagDiffUVDelta   = 0x01
	QuantizationFlagUsingQmatrix  = 0x02
	QuantizationFlagDeltaQPresent = 0x04

	LoopFilterFlagDeltaEnabled    = 0x01
	LoopFilterFlagDeltaUpdate     = 0x02
	LoopFilterFlagDeltaLfPresent  = 0x04
	LoopFilterFlagDeltaLfMulti    = 0x08

	LoopRestorationFlagUsesLr       = 0x01
	LoopRestorationFlagUsesChromaLr = 0x02

	TileInfoFlagUniformTileSpacing = 0x01
)
