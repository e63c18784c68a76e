// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package datatype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/datatype"
)

func TestWireField(t *testing.T) {
	cases := map[datatype.Datatype]string{
		datatype.Int8:    datatype.FieldInt,
		datatype.Int32:   datatype.FieldInt,
		datatype.UInt32:  datatype.FieldInt,
		datatype.Int64:   datatype.FieldLong,
		datatype.UInt64:  datatype.FieldLong,
		datatype.Float:   datatype.FieldFloat,
		datatype.Double:  datatype.FieldDouble,
		datatype.Boolean: datatype.FieldBoolean,
		datatype.String:  datatype.FieldString,
		datatype.Text:    datatype.FieldString,
		datatype.UUID:    datatype.FieldString,
		datatype.Bytes:   datatype.FieldBytes,
		datatype.File:    datatype.FieldBytes,
	}
	for dt, want := range cases {
		got, err := datatype.WireField(dt)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestWireFieldUnknownFails(t *testing.T) {
	_, err := datatype.WireField(datatype.Unknown)
	assert.Error(t, err)
}

func TestIsNumber(t *testing.T) {
	assert.True(t, datatype.IsNumber(datatype.Int32))
	assert.True(t, datatype.IsNumber(datatype.Float))
	assert.True(t, datatype.IsNumber(datatype.UInt64))
	assert.False(t, datatype.IsNumber(datatype.Boolean))
	assert.False(t, datatype.IsNumber(datatype.String))
	assert.False(t, datatype.IsNumber(datatype.Bytes))
}

func TestIntToUintLaw(t *testing.T) {
	// Property law 6: int_to_uint(v, N) == v mod 2^N for any signed N-bit int.
	assert.Equal(t, uint64(255), datatype.IntToUint(-1, 8))
	assert.Equal(t, uint64(4294967295), datatype.IntToUint(-1, 32))
	assert.Equal(t, uint64(1), datatype.IntToUint(1, 8))
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), datatype.IntToUint(-1, 64))
}

func TestCoerceIntegerBoundary(t *testing.T) {
	v, err := datatype.Coerce(datatype.Int8, float64(127))
	require.NoError(t, err)
	assert.Equal(t, int8(127), v)

	_, err = datatype.Coerce(datatype.Int8, float64(128))
	assert.Error(t, err, "bit-width exceeding the field must be rejected")

	v, err = datatype.Coerce(datatype.UInt8, float64(255))
	require.NoError(t, err)
	assert.Equal(t, uint8(255), v)

	_, err = datatype.Coerce(datatype.UInt8, float64(-1))
	assert.Error(t, err, "unsigned datatype cannot hold a negative value")
}

func TestCoerceBoolean(t *testing.T) {
	v, err := datatype.Coerce(datatype.Boolean, true)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = datatype.Coerce(datatype.Boolean, "true")
	assert.Error(t, err)
}

func TestCoerceStringAcceptsAnyText(t *testing.T) {
	v, err := datatype.Coerce(datatype.Text, "anything at all")
	require.NoError(t, err)
	assert.Equal(t, "anything at all", v)
}

func TestCoerceUUIDValidatesForm(t *testing.T) {
	v, err := datatype.Coerce(datatype.UUID, "123e4567-e89b-12d3-a456-426614174000")
	require.NoError(t, err)
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", v)

	_, err = datatype.Coerce(datatype.UUID, "not-a-uuid")
	assert.Error(t, err)
}

func TestCoerceBytes(t *testing.T) {
	v, err := datatype.Coerce(datatype.Bytes, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, v)
}
