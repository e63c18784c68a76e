// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package memorytag_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/datatype"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/memorytag"
)

func TestNonPersistentTagHoldsInMemoryValue(t *testing.T) {
	mt, err := memorytag.New("Node Control/Scan Rate", datatype.Int64, int64(1000), true, 0, true, false, "", nil)
	require.NoError(t, err)

	v, err := mt.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v)

	require.NoError(t, mt.Write(int64(2000)))
	v, err = mt.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(2000), v)
}

func TestPersistentTagCreatesFileOnFirstUse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tag.json")

	mt, err := memorytag.New("Setpoint", datatype.Double, 5.0, true, 0, false, false, path, nil)
	require.NoError(t, err)
	assert.True(t, mt.Persistent())
	assert.FileExists(t, path)
}

func TestPersistentTagRestoresAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tag.json")

	mt1, err := memorytag.New("Setpoint", datatype.Double, 5.0, true, 0, false, false, path, nil)
	require.NoError(t, err)
	require.NoError(t, mt1.Write(42.5))

	mt2, err := memorytag.New("Setpoint", datatype.Double, 0.0, true, 0, false, false, path, nil)
	require.NoError(t, err)
	v, err := mt2.Read()
	require.NoError(t, err)
	assert.Equal(t, 42.5, v)
}

func TestPersistentTagSurvivesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tag.json")
	require.NoError(t, writeRaw(path, "{not valid json"))

	mt, err := memorytag.New("Setpoint", datatype.Double, 7.0, true, 0, false, false, path, nil)
	require.NoError(t, err)
	v, err := mt.Read()
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestPersistentTagsSharingFileDoNotClobberEachOther(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shared.json")

	a, err := memorytag.New("TagA", datatype.Double, 1.0, true, 0, false, false, path, nil)
	require.NoError(t, err)
	b, err := memorytag.New("TagB", datatype.Double, 2.0, true, 0, false, false, path, nil)
	require.NoError(t, err)

	require.NoError(t, a.Write(11.0))
	require.NoError(t, b.Write(22.0))

	a2, err := memorytag.New("TagA", datatype.Double, 0.0, true, 0, false, false, path, nil)
	require.NoError(t, err)
	b2, err := memorytag.New("TagB", datatype.Double, 0.0, true, 0, false, false, path, nil)
	require.NoError(t, err)

	va, err := a2.Read()
	require.NoError(t, err)
	assert.Equal(t, 11.0, va)

	vb, err := b2.Read()
	require.NoError(t, err)
	assert.Equal(t, 22.0, vb)
}

func TestGetConfigReportsCurrentValue(t *testing.T) {
	mt, err := memorytag.New("Setpoint", datatype.Double, 1.0, true, 0, false, false, "", nil)
	require.NoError(t, err)
	cfg := mt.GetConfig()
	assert.Equal(t, "Setpoint", cfg["name"])
	assert.Equal(t, 1.0, cfg["current_value"])
	assert.Equal(t, false, cfg["persistent"])
}

func TestWriteValidatorRejectsInvalidWrite(t *testing.T) {
	rejectNegative := func(_, new any) bool {
		v, ok := new.(float64)
		return ok && v >= 0
	}
	mt, err := memorytag.New("Setpoint", datatype.Double, 5.0, true, 0, false, false, "", rejectNegative)
	require.NoError(t, err)

	err = mt.Write(-1.0)
	require.Error(t, err)

	v, err := mt.Read()
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	require.NoError(t, mt.Write(9.0))
	v, err = mt.Read()
	require.NoError(t, err)
	assert.Equal(t, 9.0, v)
}

func TestSaveToDiskExportedForConfigSaveTick(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tag.json")

	mt, err := memorytag.New("Setpoint", datatype.Double, 3.0, false, 0, false, false, path, nil)
	require.NoError(t, err)
	require.NoError(t, mt.SaveToDisk())
	assert.FileExists(t, path)
}

func writeRaw(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
