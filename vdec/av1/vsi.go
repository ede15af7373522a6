// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	obu "github.com/cnotch/av1vdec/av/codec/av1"
	"github.com/cnotch/av1vdec/utils/bits"
	"github.com/cnotch/av1vdec/vdec"
)

// WorkBuffer 单个参考槽的工作缓冲地址
type WorkBuffer struct {
	Mv    vdec.Mem
	Cdf   vdec.Mem
	SegID vdec.Mem
}

// PlaneBuffer 图像缓冲的亮度与色度地址
type PlaneBuffer struct {
	Y vdec.Mem
	C vdec.Mem
}

// VSI 主处理器与协处理器之间交换的参数块。
// 公共头部位于偏移 0，其后依次为 LAT 缓冲、CORE 缓冲、槽表和帧参数
type VSI struct {
	vdec.Header
	Bs           vdec.Mem
	WorkBuffer   [MaxFrameBufCount]WorkBuffer
	CdfTable     vdec.Mem
	CdfTmp       vdec.Mem
	RdMv         vdec.Mem // LAT 输出，CORE 输入
	ErrMap       vdec.Mem
	RowInfo      vdec.Mem
	Fb           PlaneBuffer
	Ref          [obu.RefsPerFrame]PlaneBuffer
	IqTable      vdec.Mem
	Tile         vdec.Mem
	Slots        SlotTable
	SlotID       int
	Frame        Frame
	CurLstTileID uint32
}

// VsiSize 打包后的 vsi 字节数
var VsiSize = len(new(VSI).Marshal())

// Marshal 按小端序打包整个 vsi
func (v *VSI) Marshal() []byte {
	w := bits.NewWriter(16 * 1024)
	v.Header.Put(w)
	putMem(w, &v.Bs)
	for i := range v.WorkBuffer {
		wb := &v.WorkBuffer[i]
		putMem(w, &wb.Mv)
		putMem(w, &wb.Cdf)
		putMem(w, &wb.SegID)
	}
	putMem(w, &v.CdfTable)
	putMem(w, &v.CdfTmp)
	putMem(w, &v.RdMv)
	putMem(w, &v.ErrMap)
	putMem(w, &v.RowInfo)
	putPlanes(w, &v.Fb)
	for i := range v.Ref {
		putPlanes(w, &v.Ref[i])
	}
	putMem(w, &v.IqTable)
	putMem(w, &v.Tile)
	putSlots(w, &v.Slots)
	w.PutInt32(int32(v.SlotID))
	putFrame(w, &v.Frame)
	w.PutUint32(v.CurLstTileID)
	return w.Bytes()
}

func putMem(w *bits.Writer, m *vdec.Mem) {
	w.PutUint64(m.Addr)
	w.PutUint64(m.Size)
}

func putPlanes(w *bits.Writer, p *PlaneBuffer) {
	putMem(w, &p.Y)
	putMem(w, &p.C)
}

func putSlots(w *bits.Writer, st *SlotTable) {
	for i := range st.FrameInfo {
		fi := &st.FrameInfo[i]
		w.PutUint8(uint8(fi.FrameType))
		w.PutBool(fi.FrameIsIntra)
		w.Align(4)
		w.PutUint32(fi.OrderHint)
		w.PutUint32(fi.UpscaledWidth)
		w.PutUint32(fi.PicPitch)
		w.PutUint32(fi.FrameWidth)
		w.PutUint32(fi.FrameHeight)
		w.PutUint32(fi.MiRows)
		w.PutUint32(fi.MiCols)
		w.PutInt32(fi.RefCount)
	}
	for _, idx := range st.RefFrameMap {
		w.PutInt32(int32(idx))
	}
	w.Align(8)
	for _, ts := range st.Timestamp {
		w.PutUint64(ts)
	}
}

func putFrameRefs(w *bits.Writer, ref *FrameRefs) {
	w.PutInt32(int32(ref.RefFbIdx))
	w.PutInt32(int32(ref.RefMapIdx))
	sf := &ref.ScaleFactors
	w.PutBool32(sf.IsScaled)
	w.PutInt32(sf.XScale)
	w.PutInt32(sf.YScale)
	w.PutInt32(sf.XStep)
	w.PutInt32(sf.YStep)
}

func putFrame(w *bits.Writer, f *Frame) {
	putHeader(w, &f.UH)
	putSequence(w, &f.Seq)
	w.PutBool(f.LargeScaleTile)
	w.Align(8)
	w.PutUint64(f.CurTs)
	w.PutInt32(int32(f.PrevFbIdx))
	for _, b := range f.RefFrameSignBias {
		w.PutBool(b)
	}
	for _, oh := range f.OrderHints {
		w.PutUint32(oh)
	}
	for _, valid := range f.RefFrameValid {
		w.PutBool32(valid)
	}
	for i := range f.FrameRefs {
		putFrameRefs(w, &f.FrameRefs[i])
	}
}

func putSequence(w *bits.Writer, seq *SequenceHeader) {
	w.PutUint8(seq.BitDepth)
	w.PutBool(seq.EnableSuperres)
	w.PutBool(seq.EnableFilterIntra)
	w.PutBool(seq.EnableIntraEdgeFilter)
	w.PutBool(seq.EnableInterintraCompound)
	w.PutBool(seq.EnableMaskedCompound)
	w.PutBool(seq.EnableDualFilter)
	w.PutBool(seq.EnableJntComp)
	w.PutBool(seq.MonoChrome)
	w.PutBool(seq.EnableOrderHint)
	w.PutUint8(seq.OrderHintBits)
	w.PutBool(seq.Use128x128Superblock)
	w.PutBool(seq.SubsamplingX)
	w.PutBool(seq.SubsamplingY)
	w.Align(4)
	w.PutUint32(seq.MaxFrameWidth)
	w.PutUint32(seq.MaxFrameHeight)
}

func putHeader(w *bits.Writer, uh *UncompressedHeader) {
	w.PutBool32(uh.UseRefFrameMvs)
	w.PutUint32(uh.OrderHint)
	for i := range uh.GM {
		gm := &uh.GM[i]
		w.PutUint32(uint32(gm.WmType))
		for _, m := range gm.WmMat {
			w.PutInt32(m)
		}
		w.PutInt16(gm.Alpha)
		w.PutInt16(gm.Beta)
		w.PutInt16(gm.Gamma)
		w.PutInt16(gm.Delta)
		w.PutBool(gm.Invalid)
		w.Align(4)
	}
	w.PutUint32(uh.UpscaledWidth)
	w.PutUint32(uh.FrameWidth)
	w.PutUint32(uh.FrameHeight)
	w.PutBool(uh.ReducedTxSet)
	w.PutUint8(uh.TxMode)
	w.PutBool(uh.UniformTileSpacing)
	w.PutUint8(uh.InterpolationFilter)
	w.PutBool(uh.AllowWarpedMotion)
	w.PutBool(uh.IsMotionModeSwitchable)
	w.PutUint8(uint8(uh.ReferenceMode))
	w.PutBool(uh.AllowHighPrecisionMv)
	w.PutBool(uh.AllowIntraBC)
	w.PutBool(uh.ForceIntegerMv)
	w.PutBool(uh.AllowScreenContentTools)
	w.PutBool(uh.ErrorResilientMode)
	w.PutUint8(uint8(uh.FrameType))
	w.PutUint8(uh.PrimaryRefFrame)
	w.Align(4)
	w.PutUint32(uint32(uh.RefreshFrameFlags))
	w.PutBool(uh.DisableFrameEndUpdateCdf)
	w.Align(4)
	w.PutBool32(uh.DisableCdfUpdate)

	sm := &uh.SkipMode
	w.PutBool(sm.Allowed)
	w.PutBool(sm.Present)
	w.Align(4)
	w.PutInt32(sm.Frame[0])
	w.PutInt32(sm.Frame[1])

	seg := &uh.Seg
	w.PutBool(seg.Enabled)
	w.PutBool(seg.UpdateMap)
	w.PutBool(seg.TemporalUpdate)
	w.PutBool(seg.UpdateData)
	for i := range seg.FeatureData {
		for _, d := range seg.FeatureData[i] {
			w.PutInt32(d)
		}
	}
	for _, mask := range seg.FeatureEnabledMask {
		w.PutUint16(mask)
	}
	w.PutBool32(seg.SegIDPreSkip)
	w.PutInt32(seg.LastActiveSegID)

	dq := &uh.DeltaQLf
	w.PutBool(dq.DeltaQPresent)
	w.PutUint8(dq.DeltaQRes)
	w.PutBool(dq.DeltaLfPresent)
	w.PutUint8(dq.DeltaLfRes)
	w.PutBool(dq.DeltaLfMulti)
	w.Align(4)

	q := &uh.Quant
	w.PutInt32(q.BaseQIdx)
	for _, qi := range q.QIndex {
		w.PutInt32(qi)
	}
	w.PutInt32(q.DeltaQYDc)
	w.PutInt32(q.DeltaQUDc)
	w.PutInt32(q.DeltaQUAc)
	w.PutInt32(q.DeltaQVDc)
	w.PutInt32(q.DeltaQVAc)
	w.PutBool(q.UsingQmatrix)
	w.PutUint8(q.QmY)
	w.PutUint8(q.QmU)
	w.PutUint8(q.QmV)

	lr := &uh.Lr
	w.PutBool(lr.UseLr)
	w.PutBool(lr.UseChromaLr)
	for _, t := range lr.FrameRestorationType {
		w.PutUint8(t)
	}
	w.Align(4)
	for _, s := range lr.LoopRestorationSize {
		w.PutUint32(s)
	}
	w.PutUint32(uh.SuperresDenom)

	lf := &uh.LoopFilter
	for _, l := range lf.Level {
		w.PutUint8(l)
	}
	for _, d := range lf.RefDeltas {
		w.PutInt32(d)
	}
	for _, d := range lf.ModeDeltas {
		w.PutInt32(d)
	}
	w.PutUint8(lf.Sharpness)
	w.PutBool(lf.DeltaEnabled)

	cdef := &uh.CDEF
	w.PutUint8(cdef.Damping)
	for _, s := range cdef.YStrength {
		w.PutUint8(s)
	}
	for _, s := range cdef.UVStrength {
		w.PutUint8(s)
	}
	w.PutUint8(cdef.Bits)
	w.Align(4)

	mf := &uh.Mfmv
	for _, v := range mf.ValidRef {
		w.PutUint32(v)
	}
	for _, v := range mf.Dir {
		w.PutUint32(v)
	}
	for _, v := range mf.RefToCur {
		w.PutInt32(v)
	}
	for _, v := range mf.RefFrameIdx {
		w.PutInt32(v)
	}
	w.PutInt32(mf.Count)

	tile := &uh.Tile
	w.PutInt32(tile.TileCols)
	w.PutInt32(tile.TileRows)
	for _, s := range tile.MiColStarts {
		w.PutUint32(s)
	}
	for _, s := range tile.MiRowStarts {
		w.PutUint32(s)
	}
	w.PutUint32(tile.ContextUpdateTileID)
	w.PutBool32(tile.UniformTileSpacing)

	for i := range uh.FrameRefs {
		putFrameRefs(w, &uh.FrameRefs[i])
	}
	w.PutBool(uh.FrameIsIntra)
	for _, l := range uh.LosslessArray {
		w.PutBool(l)
	}
	w.PutBool(uh.CodedLossless)
	w.Align(4)
	w.PutUint32(uh.MiRows)
	w.PutUint32(uh.MiCols)
}
