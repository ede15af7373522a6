// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"testing"

	obu "github.com/cnotch/av1vdec/av/codec/av1"
	"github.com/stretchr/testify/assert"
)

func Test_resolveDivisor(t *testing.T) {
	tests := []struct {
		name      string
		d         uint32
		wantY     int32
		wantShift int
	}{
		{"one", 1, 16384, 14},
		{"unit", 1 << 16, 16384, 30},
		{"small", 3, 10923, 15},
		{"rounded", (1 << 16) + 1000, 16132, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, shift := resolveDivisor(tt.d)
			assert.Equal(t, tt.wantY, y)
			assert.Equal(t, tt.wantShift, shift)
		})
	}
}

func Test_reduceWarpParam(t *testing.T) {
	tests := []struct {
		v    int32
		want int16
	}{
		{0, 0},
		{31, 0},
		{32, 64},
		{100, 128},
		{-100, -128},
		{-31, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reduceWarpParam(tt.v), "reduceWarpParam(%d)", tt.v)
	}
}

func TestGlobalMotionParams_shear(t *testing.T) {
	tests := []struct {
		name string
		mat  [8]int32
		want [4]int16
	}{
		{"identity", [8]int32{0, 0, 1 << 16, 0, 0, 1 << 16}, [4]int16{0, 0, 0, 0}},
		{"non positive", [8]int32{0, 0, 0, 123, 456, 789}, [4]int16{0, 0, 0, 0}},
		{"rotzoom", [8]int32{0, 0, (1 << 16) + 1000, 500, -500, (1 << 16) + 1000}, [4]int16{1024, 512, -512, 1024}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gm := GlobalMotionParams{WmType: obu.WarpModelRotZoom, WmMat: tt.mat}
			gm.shear()
			assert.Equal(t, tt.want, [4]int16{gm.Alpha, gm.Beta, gm.Gamma, gm.Delta})
		})
	}
}

func Test_translateGlobalMotion(t *testing.T) {
	var src obu.GlobalMotion
	src.Type[1] = obu.WarpModelRotZoom
	src.Params[1] = [6]int32{0, 0, (1 << 16) + 1000, 500, -500, (1 << 16) + 1000}
	src.Invalid = 0x04

	var dst [obu.TotalRefsPerFrame]GlobalMotionParams
	translateGlobalMotion(&dst, &src)

	assert.Equal(t, obu.WarpModelRotZoom, dst[1].WmType)
	assert.Equal(t, int16(1024), dst[1].Alpha)
	assert.Equal(t, int32(500), dst[1].WmMat[3])
	assert.Zero(t, dst[1].WmMat[6])
	assert.True(t, dst[2].Invalid)
	assert.False(t, dst[1].Invalid)
	assert.Equal(t, obu.WarpModelIdentity, dst[0].WmType)
}

func Test_alignPowerOfTwo(t *testing.T) {
	assert.Equal(t, uint32(0), alignPowerOfTwo(0, 4))
	assert.Equal(t, uint32(16), alignPowerOfTwo(1, 4))
	assert.Equal(t, uint32(272), alignPowerOfTwo(270, 4))
	assert.Equal(t, uint32(288), alignPowerOfTwo(270, 5))
	assert.Equal(t, 16, msb(1<<16|5))
	assert.Equal(t, 0, msb(0))
}
