// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"math"
	"math/bits"

	obu "github.com/cnotch/av1vdec/av/codec/av1"
)

// 全局运动定点运算常量
const (
	divLutPrecBits      = 14
	divLutBits          = 8
	divLutNum           = 1 << divLutBits
	warpParamReduceBits = 6
	warpedModelPrecBits = 16
)

// divLut[i] = round(2^14 * 256 / (256 + i))
var divLut = [divLutNum + 1]uint16{
	16384, 16320, 16257, 16194, 16132, 16070, 16009, 15948, 15888, 15828,
	15768, 15709, 15650, 15592, 15534, 15477, 15420, 15364, 15308, 15252,
	15197, 15142, 15087, 15033, 14980, 14926, 14873, 14821, 14769, 14717,
	14665, 14614, 14564, 14513, 14463, 14413, 14364, 14315, 14266, 14218,
	14170, 14122, 14075, 14028, 13981, 13935, 13888, 13843, 13797, 13752,
	13707, 13662, 13618, 13574, 13530, 13487, 13443, 13400, 13358, 13315,
	13273, 13231, 13190, 13148, 13107, 13066, 13026, 12985, 12945, 12906,
	12866, 12827, 12788, 12749, 12710, 12672, 12633, 12596, 12558, 12520,
	12483, 12446, 12409, 12373, 12336, 12300, 12264, 12228, 12193, 12157,
	12122, 12087, 12053, 12018, 11984, 11950, 11916, 11882, 11848, 11815,
	11782, 11749, 11716, 11683, 11651, 11619, 11586, 11555, 11523, 11491,
	11460, 11429, 11398, 11367, 11336, 11305, 11275, 11245, 11215, 11185,
	11155, 11125, 11096, 11067, 11038, 11009, 10980, 10951, 10923, 10894,
	10866, 10838, 10810, 10782, 10755, 10727, 10700, 10673, 10645, 10618,
	10592, 10565, 10538, 10512, 10486, 10460, 10434, 10408, 10382, 10356,
	10331, 10305, 10280, 10255, 10230, 10205, 10180, 10156, 10131, 10107,
	10082, 10058, 10034, 10010, 9986, 9963, 9939, 9916, 9892, 9869,
	9846, 9823, 9800, 9777, 9754, 9732, 9709, 9687, 9664, 9642,
	9620, 9598, 9576, 9554, 9533, 9511, 9489, 9468, 9447, 9425,
	9404, 9383, 9362, 9341, 9321, 9300, 9279, 9259, 9239, 9218,
	9198, 9178, 9158, 9138, 9118, 9098, 9079, 9059, 9039, 9020,
	9001, 8981, 8962, 8943, 8924, 8905, 8886, 8867, 8849, 8830,
	8812, 8793, 8775, 8756, 8738, 8720, 8702, 8684, 8666, 8648,
	8630, 8613, 8595, 8577, 8560, 8542, 8525, 8508, 8490, 8473,
	8456, 8439, 8422, 8405, 8389, 8372, 8355, 8339, 8322, 8306,
	8289, 8273, 8257, 8240, 8224, 8208, 8192,
}

// resolveDivisor 查表求 1/d 的定点近似，返回乘数与移位；
// d 必须大于 0
func resolveDivisor(d uint32) (int32, int) {
	shift := msb(d)
	// 去掉最高位的 1
	e := d - (uint32(1) << uint(shift))
	var f uint32
	if shift > divLutBits {
		f = roundPowerOfTwo(e, uint(shift-divLutBits))
	} else {
		f = e << uint(divLutBits-shift)
	}
	if f > divLutNum {
		return -1, shift + divLutPrecBits
	}
	return int32(divLut[f]), shift + divLutPrecBits
}

// shear 计算仿射模型的 alpha/beta/gamma/delta；wmmat[2] <= 0 时保持为 0
func (gm *GlobalMotionParams) shear() {
	mat := &gm.WmMat
	if mat[2] <= 0 {
		return
	}

	alpha := clip16(mat[2] - (1 << warpedModelPrecBits))
	beta := clip16(mat[3])

	y, shift := resolveDivisor(uint32(mat[2]))
	v := int64(mat[4]) * (1 << warpedModelPrecBits) * int64(y)
	gamma := clip16(int32(roundPowerOfTwoSigned64(v, uint(shift))))
	v = int64(mat[3]) * int64(mat[4]) * int64(y)
	delta := clip16(mat[5] - int32(roundPowerOfTwoSigned64(v, uint(shift))) -
		(1 << warpedModelPrecBits))

	gm.Alpha = reduceWarpParam(alpha)
	gm.Beta = reduceWarpParam(beta)
	gm.Gamma = reduceWarpParam(gamma)
	gm.Delta = reduceWarpParam(delta)
}

func translateGlobalMotion(dst *[obu.TotalRefsPerFrame]GlobalMotionParams, src *obu.GlobalMotion) {
	for i := range dst {
		gm := &dst[i]
		*gm = GlobalMotionParams{
			WmType:  src.Type[i],
			Invalid: src.Invalid&(1<<uint(i)) != 0,
		}
		for j := 0; j < 6; j++ {
			gm.WmMat[j] = src.Params[i][j]
		}
		if gm.WmType <= obu.WarpModelAffine {
			gm.shear()
		}
	}
}

// reduceWarpParam 降低 6 位精度后还原量级
func reduceWarpParam(v int32) int16 {
	return int16(roundPowerOfTwoSigned(v, warpParamReduceBits) * (1 << warpParamReduceBits))
}

func msb(n uint32) int {
	if n == 0 {
		return 0
	}
	return bits.Len32(n) - 1
}

func clip3(v, low, high int32) int32 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func clip16(v int32) int32 { return clip3(v, math.MinInt16, math.MaxInt16) }

func roundPowerOfTwo(v uint32, n uint) uint32 {
	return (v + ((1 << n) >> 1)) >> n
}

func roundPowerOfTwoSigned(v int32, n uint) int32 {
	if v < 0 {
		return -int32(roundPowerOfTwo(uint32(-v), n))
	}
	return int32(roundPowerOfTwo(uint32(v), n))
}

func roundPowerOfTwoSigned64(v int64, n uint) int64 {
	round := func(x uint64) uint64 { return (x + ((1 << n) >> 1)) >> n }
	if v < 0 {
		return -int64(round(uint64(-v)))
	}
	return int64(round(uint64(v)))
}

func alignPowerOfTwo(v uint32, n uint) uint32 {
	return (v + (1 << n) - 1) &^ ((1 << n) - 1)
}
