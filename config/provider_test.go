// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name   string
	config map[string]interface{}
	err    error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Configure(config map[string]interface{}) error {
	p.config = config
	return p.err
}

func TestProviderConfig_Load(t *testing.T) {
	sim := &fakeProvider{name: "sim"}
	hw := &fakeProvider{name: "mtk", err: errors.New("no device")}

	c := &ProviderConfig{Provider: "SIM", Config: map[string]interface{}{"vsi_size": 1.0}}
	p, err := c.Load(hw, sim)
	require.NoError(t, err)
	assert.Same(t, sim, p)
	assert.Equal(t, c.Config, sim.config)

	_, err = (&ProviderConfig{Provider: "mtk"}).Load(hw, sim)
	assert.EqualError(t, err, `configure provider "mtk": no device`)

	_, err = (&ProviderConfig{Provider: "vaapi"}).Load(hw, sim)
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestLoadProvider(t *testing.T) {
	sim := &fakeProvider{name: "sim"}
	assert.Same(t, sim, LoadProvider(nil, sim))
	assert.Same(t, sim, LoadProvider(&ProviderConfig{}, sim))
	assert.Panics(t, func() {
		LoadProvider(&ProviderConfig{Provider: "vaapi"}, sim)
	})
}
