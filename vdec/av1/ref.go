// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	obu "github.com/cnotch/av1vdec/av/codec/av1"
	"github.com/cnotch/xlog"
)

// 参考缩放常量
const (
	RefScaleShift   = 14
	ScaleSubpelBits = 10
	RefNoScale      = 1 << RefScaleShift
	RefInvalidScale = -1
)

// validRefFrameSize 参考帧尺寸是否在 AV1 允许的缩放范围内
func validRefFrameSize(refW, refH, curW, curH uint32) bool {
	return curW<<1 >= refW && curH<<1 >= refH &&
		curW <= refW<<4 && curH <= refH<<4
}

// ComputeScale 计算参考帧到当前帧的缩放系数；
// 尺寸超出范围时缩放值为 -1，IsScaled 为 false
func ComputeScale(refW, refH, curW, curH uint32) (sf ScaleFactors) {
	if curW == 0 || curH == 0 || !validRefFrameSize(refW, refH, curW, curH) {
		sf.XScale = RefInvalidScale
		sf.YScale = RefInvalidScale
		return
	}

	sf.XScale = int32(((uint64(refW) << RefScaleShift) + uint64(curW>>1)) / uint64(curW))
	sf.YScale = int32(((uint64(refH) << RefScaleShift) + uint64(curH>>1)) / uint64(curH))
	sf.IsScaled = sf.XScale != RefInvalidScale && sf.YScale != RefInvalidScale &&
		(sf.XScale != RefNoScale || sf.YScale != RefNoScale)
	sf.XStep = int32(roundPowerOfTwo(uint32(sf.XScale), RefScaleShift-ScaleSubpelBits))
	sf.YStep = int32(roundPowerOfTwo(uint32(sf.YScale), RefScaleShift-ScaleSubpelBits))
	return
}

// RelativeDist order hint 的有符号距离，按 bits 位回绕；未启用 order hint 时为 0
func RelativeDist(a, b int32, enableOrderHint bool, bits uint8) int32 {
	if !enableOrderHint || bits == 0 {
		return 0
	}
	diff := a - b
	m := int32(1) << (bits - 1)
	return (diff & (m - 1)) - (diff & m)
}

// setupRefs 按时间戳在槽表中解析 7 个参考，填写缩放系数、符号偏置与 order hint。
// 帧内帧不解析参考；未匹配的时间戳记录日志并保持无效
func setupRefs(frame *Frame, st *SlotTable, fh *obu.FrameHeader, logger *xlog.Logger) {
	uh := &frame.UH
	seq := &frame.Seq
	if uh.FrameIsIntra {
		return
	}

	for i := 0; i < obu.RefsPerFrame; i++ {
		frame.OrderHints[i] = 0
		frame.RefFrameValid[i] = false

		ts := fh.ReferenceFrameTs[i]
		j := st.FindTimestamp(ts)
		if j == InvalidIndex {
			logger.Errorf("cannot match reference[%d] %#x", i, ts)
			continue
		}

		ref := &frame.FrameRefs[i]
		fi := &st.FrameInfo[j]
		ref.RefFbIdx = j
		ref.ScaleFactors = ComputeScale(fi.UpscaledWidth, fi.FrameHeight, uh.FrameWidth, uh.FrameHeight)
		frame.RefFrameSignBias[i+1] = seq.EnableOrderHint &&
			RelativeDist(int32(fi.OrderHint), int32(uh.OrderHint), seq.EnableOrderHint, seq.OrderHintBits) > 0
		frame.OrderHints[i] = fh.OrderHints[i+1]
		frame.RefFrameValid[i] = true
	}
}

// previousFrame primary_ref_frame 对应的槽，无 primary 参考时为 InvalidIndex
func previousFrame(frame *Frame) int {
	if frame.UH.PrimaryRefFrame >= obu.PrimaryRefNone {
		return InvalidIndex
	}
	return frame.FrameRefs[frame.UH.PrimaryRefFrame].RefFbIdx
}
