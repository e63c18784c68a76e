// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMinimal(t *testing.T) {
	path := writeConfig(t, `{
		"group_id": "Factory",
		"edge_id": "Line1",
		"brokers": [{"host": "broker.local", "port": 1883}]
	}`)

	fc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Factory", fc.GroupID)
	assert.Equal(t, "Line1", fc.EdgeID)
	require.Len(t, fc.Brokers, 1)
	assert.Equal(t, "broker.local", fc.Brokers[0].Host)
	assert.Equal(t, 1883, fc.Brokers[0].Port)
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `{
		"group_id": "Factory",
		"edge_id": "Line1",
		"scan_rate_ms": 2000,
		"config_save_rate_ms": 60000,
		"brokers": [
			{"host": "primary.local", "port": 8883, "use_tls": true, "primary": true},
			{"host": "backup.local", "port": 1883}
		],
		"memory_tags": [
			{"name": "setpoint", "datatype": "Double", "initial_value": 21.5, "writable": true}
		]
	}`)

	fc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), fc.ScanRateMs)
	require.Len(t, fc.Brokers, 2)
	assert.True(t, fc.Brokers[0].Primary)
	require.Len(t, fc.MemoryTags, 1)
	assert.Equal(t, "setpoint", fc.MemoryTags[0].Name)

	dt, err := fc.MemoryTags[0].ResolvedDatatype()
	require.NoError(t, err)
	info := fc.Brokers[0].ToBrokerInfo()
	assert.Equal(t, "primary.local", info.Host)
	assert.True(t, info.UseTLS)
	assert.NotZero(t, dt)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	path := writeConfig(t, `{"group_id": "Factory", "brokers": [{"host": "b", "port": 1883}]}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, `{
		"group_id": "Factory",
		"edge_id": "Line1",
		"brokers": [{"host": "b", "port": 1883}],
		"unexpected_field": true
	}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDatatype(t *testing.T) {
	path := writeConfig(t, `{
		"group_id": "Factory",
		"edge_id": "Line1",
		"brokers": [{"host": "b", "port": 1883}],
		"memory_tags": [{"name": "x", "datatype": "NotAType"}]
	}`)
	fc, err := Load(path)
	require.NoError(t, err)
	_, err = fc.MemoryTags[0].ResolvedDatatype()
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestMemoryTagConfigResolvedWriteValidatorEnforcesBounds(t *testing.T) {
	path := writeConfig(t, `{
		"group_id": "Factory",
		"edge_id": "Line1",
		"brokers": [{"host": "b", "port": 1883}],
		"memory_tags": [
			{"name": "setpoint", "datatype": "Double", "initial_value": 0, "writable": true, "min_value": 0, "max_value": 100}
		]
	}`)

	fc, err := Load(path)
	require.NoError(t, err)

	validator := fc.MemoryTags[0].ResolvedWriteValidator()
	require.NotNil(t, validator)
	assert.True(t, validator(0.0, 50.0))
	assert.False(t, validator(0.0, -1.0))
	assert.False(t, validator(0.0, 101.0))
}

func TestMemoryTagConfigResolvedWriteValidatorNilWithoutBounds(t *testing.T) {
	path := writeConfig(t, `{
		"group_id": "Factory",
		"edge_id": "Line1",
		"brokers": [{"host": "b", "port": 1883}],
		"memory_tags": [{"name": "setpoint", "datatype": "Double", "initial_value": 0}]
	}`)

	fc, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, fc.MemoryTags[0].ResolvedWriteValidator())
}
