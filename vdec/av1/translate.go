// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"fmt"

	obu "github.com/cnotch/av1vdec/av/codec/av1"
	"github.com/cnotch/av1vdec/vdec"
)

// Translate 把控制面语法元素转换为硬件使用的帧参数。
// 只读取 ctrls，不修改它；参考帧与前一帧索引由 setupRefs 填写
func Translate(ctrls *obu.Controls) (*Frame, error) {
	if err := ctrls.Validate(); err != nil {
		return nil, fmt.Errorf("translate: %w: %v", vdec.ErrInvalidParam, err)
	}

	fh := ctrls.Frame
	if fh.TileInfo.TileCols == 0 || fh.TileInfo.TileRows == 0 ||
		fh.TileInfo.TileCols > obu.MaxTileCols || fh.TileInfo.TileRows > obu.MaxTileRows {
		return nil, fmt.Errorf("translate: %w: tile grid %dx%d",
			vdec.ErrInvalidParam, fh.TileInfo.TileCols, fh.TileInfo.TileRows)
	}

	frame := &Frame{PrevFbIdx: InvalidIndex}
	for i := range frame.FrameRefs {
		frame.FrameRefs[i].RefFbIdx = InvalidIndex
	}
	translateSequence(&frame.Seq, ctrls.Sequence)
	translateHeader(frame, fh)
	frame.LargeScaleTile = ctrls.OperatingMode == obu.OperatingModeLargeScaleTile
	return frame, nil
}

func translateSequence(seq *SequenceHeader, src *obu.SequenceHeader) {
	seq.BitDepth = src.BitDepth
	seq.MaxFrameWidth = uint32(src.MaxFrameWidthMinus1) + 1
	seq.MaxFrameHeight = uint32(src.MaxFrameHeightMinus1) + 1
	seq.EnableSuperres = src.Has(obu.SequenceFlagEnableSuperres)
	seq.EnableFilterIntra = src.Has(obu.SequenceFlagEnableFilterIntra)
	seq.EnableIntraEdgeFilter = src.Has(obu.SequenceFlagEnableIntraEdgeFilter)
	seq.EnableInterintraCompound = src.Has(obu.SequenceFlagEnableInterintraCompound)
	seq.EnableMaskedCompound = src.Has(obu.SequenceFlagEnableMaskedCompound)
	seq.EnableDualFilter = src.Has(obu.SequenceFlagEnableDualFilter)
	seq.EnableJntComp = src.Has(obu.SequenceFlagEnableJntComp)
	seq.MonoChrome = src.Has(obu.SequenceFlagMonoChrome)
	seq.EnableOrderHint = src.Has(obu.SequenceFlagEnableOrderHint)
	seq.OrderHintBits = src.OrderHintBits
	seq.Use128x128Superblock = src.Has(obu.SequenceFlagUse128x128Superblock)
	seq.SubsamplingX = src.Has(obu.SequenceFlagSubsamplingX)
	seq.SubsamplingY = src.Has(obu.SequenceFlagSubsamplingY)
}

func translateHeader(frame *Frame, fh *obu.FrameHeader) {
	uh := &frame.UH

	uh.UseRefFrameMvs = fh.Has(obu.FrameFlagUseRefFrameMvs)
	uh.OrderHint = fh.OrderHint
	translateGlobalMotion(&uh.GM, &fh.GlobalMotion)
	uh.UpscaledWidth = fh.UpscaledWidth
	uh.FrameWidth = fh.Width()
	uh.FrameHeight = fh.Height()
	uh.MiCols = MiCols(uh.FrameWidth)
	uh.MiRows = MiRows(uh.FrameHeight)
	uh.ReducedTxSet = fh.Has(obu.FrameFlagReducedTxSet)
	uh.TxMode = fh.TxMode
	uh.UniformTileSpacing = fh.TileInfo.Flags&obu.TileInfoFlagUniformTileSpacing != 0
	uh.InterpolationFilter = fh.InterpolationFilter
	uh.AllowWarpedMotion = fh.Has(obu.FrameFlagAllowWarpedMotion)
	uh.IsMotionModeSwitchable = fh.Has(obu.FrameFlagIsMotionModeSwitchable)
	uh.FrameType = fh.FrameType
	uh.FrameIsIntra = fh.FrameType.IsIntra()
	uh.ReferenceMode = SingleReference
	if !uh.FrameIsIntra && fh.Has(obu.FrameFlagReferenceSelect) {
		uh.ReferenceMode = ReferenceModeSelect
	}
	uh.AllowHighPrecisionMv = fh.Has(obu.FrameFlagAllowHighPrecisionMv)
	uh.AllowIntraBC = fh.Has(obu.FrameFlagAllowIntrabc)
	uh.ForceIntegerMv = fh.Has(obu.FrameFlagForceIntegerMv)
	uh.AllowScreenContentTools = fh.Has(obu.FrameFlagAllowScreenContentTools)
	uh.ErrorResilientMode = fh.Has(obu.FrameFlagErrorResilientMode)
	uh.PrimaryRefFrame = fh.PrimaryRefFrame
	uh.RefreshFrameFlags = fh.RefreshFrameFlags
	uh.DisableFrameEndUpdateCdf = fh.Has(obu.FrameFlagDisableFrameEndUpdateCdf)
	uh.DisableCdfUpdate = fh.Has(obu.FrameFlagDisableCdfUpdate)

	uh.SkipMode.Allowed = fh.Has(obu.FrameFlagSkipModeAllowed)
	uh.SkipMode.Present = fh.Has(obu.FrameFlagSkipModePresent)
	uh.SkipMode.Frame[0] = int32(fh.SkipModeFrame[0]) - obu.RefLastFrame
	uh.SkipMode.Frame[1] = int32(fh.SkipModeFrame[1]) - obu.RefLastFrame

	translateSegmentation(&uh.Seg, &fh.Segmentation)

	q := &fh.Quantization
	lf := &fh.LoopFilter
	uh.DeltaQLf = DeltaQLf{
		DeltaQPresent:  q.Flags&obu.QuantizationFlagDeltaQPresent != 0,
		DeltaQRes:      1 << q.DeltaQRes,
		DeltaLfPresent: lf.Flags&obu.LoopFilterFlagDeltaLfPresent != 0,
		DeltaLfRes:     lf.DeltaLfRes,
		DeltaLfMulti:   lf.Flags&obu.LoopFilterFlagDeltaLfMulti != 0,
	}
	translateQuantization(&uh.Quant, q)

	uh.CodedLossless = true
	for i := 0; i < obu.MaxSegments; i++ {
		uh.Quant.QIndex[i] = qindex(uh, i)
		uh.LosslessArray[i] = uh.Quant.QIndex[i] == 0 && uh.Quant.DeltaQYDc == 0 &&
			uh.Quant.DeltaQUAc == 0 && uh.Quant.DeltaQUDc == 0 &&
			uh.Quant.DeltaQVAc == 0 && uh.Quant.DeltaQVDc == 0
		if !uh.LosslessArray[i] {
			uh.CodedLossless = false
		}
	}

	translateLoopRestoration(&uh.Lr, &fh.LoopRestoration)
	uh.SuperresDenom = uint32(fh.SuperresDenom)
	translateLoopFilter(&uh.LoopFilter, lf)
	uh.CDEF = translateCDEF(&fh.CDEF)
	translateTile(&uh.Tile, &fh.TileInfo, frame.Seq.Use128x128Superblock)
}

func translateSegmentation(seg *Segmentation, src *obu.Segmentation) {
	seg.Enabled = src.Flags&obu.SegmentationFlagEnabled != 0
	seg.UpdateMap = src.Flags&obu.SegmentationFlagUpdateMap != 0
	seg.TemporalUpdate = src.Flags&obu.SegmentationFlagTemporalUpdate != 0
	seg.UpdateData = src.Flags&obu.SegmentationFlagUpdateData != 0
	seg.SegIDPreSkip = src.Flags&obu.SegmentationFlagSegIDPreSkip != 0
	seg.LastActiveSegID = int32(src.LastActiveSegID)
	for i := 0; i < obu.MaxSegments; i++ {
		seg.FeatureEnabledMask[i] = uint16(src.FeatureEnabled[i])
		for j := 0; j < obu.SegLvlMax; j++ {
			seg.FeatureData[i][j] = int32(src.FeatureData[i][j])
		}
	}
}

func translateQuantization(quant *Quantization, src *obu.Quantization) {
	quant.BaseQIdx = int32(src.BaseQIdx)
	quant.DeltaQYDc = int32(src.DeltaQYDc)
	quant.DeltaQUDc = int32(src.DeltaQUDc)
	quant.DeltaQUAc = int32(src.DeltaQUAc)
	quant.DeltaQVDc = int32(src.DeltaQVDc)
	quant.DeltaQVAc = int32(src.DeltaQVAc)
	quant.QmY = src.QmY
	quant.QmU = src.QmU
	quant.QmV = src.QmV
	quant.UsingQmatrix = src.Flags&obu.QuantizationFlagUsingQmatrix != 0
}

// qindex 分段 alt-Q 特性打开时为 clip(base+delta, 0, 255)，否则为 base_q_idx
func qindex(uh *UncompressedHeader, segID int) int32 {
	seg := &uh.Seg
	if seg.Enabled && seg.FeatureEnabledMask[segID]&(1<<obu.SegLvlAltQ) != 0 {
		return clip3(uh.Quant.BaseQIdx+seg.FeatureData[segID][obu.SegLvlAltQ], 0, obu.MaxQIndex)
	}
	return uh.Quant.BaseQIdx
}

func translateLoopRestoration(lr *LoopRestoration, src *obu.LoopRestoration) {
	lr.UseLr = src.Flags&obu.LoopRestorationFlagUsesLr != 0
	lr.UseChromaLr = src.Flags&obu.LoopRestorationFlagUsesChromaLr != 0
	lr.FrameRestorationType = src.FrameRestorationType
	lr.LoopRestorationSize = src.LoopRestorationSize
}

func translateLoopFilter(lf *LoopFilter, src *obu.LoopFilter) {
	lf.Level = src.Level
	for i := range src.RefDeltas {
		lf.RefDeltas[i] = int32(src.RefDeltas[i])
	}
	for i := range src.ModeDeltas {
		lf.ModeDeltas[i] = int32(src.ModeDeltas[i])
	}
	lf.Sharpness = src.Sharpness
	lf.DeltaEnabled = src.Flags&obu.LoopFilterFlagDeltaEnabled != 0
}

// translateCDEF 次强度 4 按 3 编码，强度打包为 pri<<2 | sec
func translateCDEF(src *obu.CDEF) (cdef CDEF) {
	cdef.Damping = src.DampingMinus3 + 3
	cdef.Bits = src.Bits
	for i := 0; i < obu.CdefMax; i++ {
		cdef.YStrength[i] = src.YPriStrength[i]<<2 | cdefSecStrength(src.YSecStrength[i])
		cdef.UVStrength[i] = src.UVPriStrength[i]<<2 | cdefSecStrength(src.UVSecStrength[i])
	}
	return
}

func cdefSecStrength(s uint8) uint8 {
	if s == 4 {
		return 3
	}
	return s
}

// translateTile 起始位置对齐到超级块后换算为超级块单位
func translateTile(tile *Tile, src *obu.TileInfo, sb128 bool) {
	var log2 uint = 4
	if sb128 {
		log2 = 5
	}

	tile.TileCols = int32(src.TileCols)
	tile.TileRows = int32(src.TileRows)
	tile.ContextUpdateTileID = src.ContextUpdateTileID
	tile.UniformTileSpacing = src.Flags&obu.TileInfoFlagUniformTileSpacing != 0
	for i := 0; i <= int(src.TileCols); i++ {
		tile.MiColStarts[i] = alignPowerOfTwo(src.MiColStarts[i], log2) >> log2
	}
	for i := 0; i <= int(src.TileRows); i++ {
		tile.MiRowStarts[i] = alignPowerOfTwo(src.MiRowStarts[i], log2) >> log2
	}
}
