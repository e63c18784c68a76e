// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package datatype is the Sparkplug B datatype registry (component C1):
// a closed, total table from datatype to its protobuf wire field name and
// its coercion rule. It never guesses a wire field for an unregistered
// datatype and never emits Unknown.
package datatype

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Datatype is a Sparkplug B metric datatype, restricted to the common
// scalar set named in spec.md §3. Numeric values match the Sparkplug/Tahu
// Payload.Metric.DataType encoding so payloads stay wire-compatible with
// other Sparkplug B implementations (the gap at 16/19 is DataSet/Template,
// out of scope per spec.md §1 Non-goals).
type Datatype uint32

const (
	Unknown Datatype = 0
	Int8    Datatype = 1
	Int16   Datatype = 2
	Int32   Datatype = 3
	Int64   Datatype = 4
	UInt8   Datatype = 5
	UInt16  Datatype = 6
	UInt32  Datatype = 7
	UInt64  Datatype = 8
	Float   Datatype = 9
	Double  Datatype = 10
	Boolean Datatype = 11
	String  Datatype = 12
	DateTime Datatype = 13
	Text    Datatype = 14
	UUID    Datatype = 15
	Bytes   Datatype = 17
	File    Datatype = 18
)

// Wire field names, matching the protobuf Payload.Metric value oneof.
const (
	FieldInt     = "int_value"
	FieldLong    = "long_value"
	FieldFloat   = "float_value"
	FieldDouble  = "double_value"
	FieldBoolean = "boolean_value"
	FieldString  = "string_value"
	FieldBytes   = "bytes_value"
)

type entry struct {
	wireField string
	bitWidth  int // 0 for non-integer datatypes
	unsigned  bool
}

var registry = map[Datatype]entry{
	Int8:     {FieldInt, 8, false},
	Int16:    {FieldInt, 16, false},
	Int32:    {FieldInt, 32, false},
	Int64:    {FieldLong, 64, false},
	UInt8:    {FieldInt, 8, true},
	UInt16:   {FieldInt, 16, true},
	UInt32:   {FieldInt, 32, true},
	UInt64:   {FieldLong, 64, true},
	Float:    {FieldFloat, 0, false},
	Double:   {FieldDouble, 0, false},
	Boolean:  {FieldBoolean, 0, false},
	String:   {FieldString, 0, false},
	DateTime: {FieldString, 0, false},
	Text:     {FieldString, 0, false},
	UUID:     {FieldString, 0, false},
	Bytes:    {FieldBytes, 0, false},
	File:     {FieldBytes, 0, false},
}

func (dt Datatype) String() string {
	switch dt {
	case Int8:
		return "Int8"
	case Int16:
		return "Int16"
	case Int32:
		return "Int32"
	case Int64:
		return "Int64"
	case UInt8:
		return "UInt8"
	case UInt16:
		return "UInt16"
	case UInt32:
		return "UInt32"
	case UInt64:
		return "UInt64"
	case Float:
		return "Float"
	case Double:
		return "Double"
	case Boolean:
		return "Boolean"
	case String:
		return "String"
	case DateTime:
		return "DateTime"
	case Text:
		return "Text"
	case UUID:
		return "UUID"
	case Bytes:
		return "Bytes"
	case File:
		return "File"
	default:
		return fmt.Sprintf("Datatype(%d)", uint32(dt))
	}
}

// WireField returns the protobuf Payload.Metric field name dt is encoded
// into. Every registered datatype has one; Unknown and any datatype outside
// the common scalar set return an error instead of a guessed field.
func WireField(dt Datatype) (string, error) {
	e, ok := registry[dt]
	if !ok {
		return "", fmt.Errorf("datatype: no wire field for unsupported datatype %v", dt)
	}
	return e.wireField, nil
}

// IsNumber reports whether dt's wire field holds a numeric value (signed or
// unsigned integer, float, or double).
func IsNumber(dt Datatype) bool {
	e, ok := registry[dt]
	if !ok {
		return false
	}
	return e.wireField != FieldBoolean && e.wireField != FieldString && e.wireField != FieldBytes
}

// IsUnsigned reports whether dt's canonical value must be reinterpreted via
// IntToUint before being placed into its (signed) wire field.
func IsUnsigned(dt Datatype) bool {
	return registry[dt].unsigned
}

// BitWidth returns the integer bit width backing dt, or 0 for non-integer
// datatypes.
func BitWidth(dt Datatype) int {
	return registry[dt].bitWidth
}

// IntToUint reinterprets a signed integer as the unsigned two's-complement
// bit pattern it would have in an n-bit register: int_to_uint(v, n) == v
// mod 2^n. Used when an unsigned datatype's value is placed into the
// (signed) int_value/long_value wire field.
func IntToUint(v int64, bitSize int) uint64 {
	if bitSize >= 64 {
		return uint64(v)
	}
	mask := (uint64(1) << uint(bitSize)) - 1
	return uint64(v) & mask
}

// Coerce converts a raw wire/NCMD value into dt's canonical in-memory Go
// representation, or fails per the boundary rules in spec.md §4.1: signed
// integer inputs whose bit width exceeds the field are rejected, Boolean
// accepts only true/false, String/Text accept any textual value, and UUID
// additionally requires the text to parse as a UUID.
func Coerce(dt Datatype, raw any) (any, error) {
	e, ok := registry[dt]
	if !ok {
		return nil, fmt.Errorf("datatype: cannot coerce unsupported datatype %v", dt)
	}

	switch dt {
	case Int8, Int16, Int32, Int64, UInt8, UInt16, UInt32, UInt64:
		return coerceInteger(dt, e, raw)
	case Float:
		f, err := toFloat64(raw)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case Double:
		return toFloat64(raw)
	case Boolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("datatype: Boolean accepts only true/false, got %T", raw)
		}
		return b, nil
	case String, Text, DateTime:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("datatype: %v accepts only textual values, got %T", dt, raw)
		}
		return s, nil
	case UUID:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("datatype: UUID accepts only textual values, got %T", raw)
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, fmt.Errorf("datatype: invalid UUID %q: %w", s, err)
		}
		return s, nil
	case Bytes, File:
		switch b := raw.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		default:
			return nil, fmt.Errorf("datatype: %v accepts only byte-like values, got %T", dt, raw)
		}
	default:
		return nil, fmt.Errorf("datatype: unsupported datatype %v", dt)
	}
}

func coerceInteger(dt Datatype, e entry, raw any) (any, error) {
	v, err := toInt64(raw)
	if err != nil {
		return nil, err
	}

	if e.unsigned {
		if v < 0 {
			return nil, fmt.Errorf("datatype: %v cannot hold negative value %d", dt, v)
		}
		maxVal := uint64(math.MaxUint64)
		if e.bitWidth < 64 {
			maxVal = (uint64(1) << uint(e.bitWidth)) - 1
		}
		if uint64(v) > maxVal {
			return nil, fmt.Errorf("datatype: value %d exceeds %d-bit unsigned range for %v", v, e.bitWidth, dt)
		}
		switch dt {
		case UInt8:
			return uint8(v), nil
		case UInt16:
			return uint16(v), nil
		case UInt32:
			return uint32(v), nil
		case UInt64:
			return uint64(v), nil
		}
	}

	minVal, maxVal := signedRange(e.bitWidth)
	if v < minVal || v > maxVal {
		return nil, fmt.Errorf("datatype: value %d exceeds %d-bit signed range for %v", v, e.bitWidth, dt)
	}
	switch dt {
	case Int8:
		return int8(v), nil
	case Int16:
		return int16(v), nil
	case Int32:
		return int32(v), nil
	case Int64:
		return v, nil
	}
	return nil, fmt.Errorf("datatype: unreachable coercion for %v", dt)
}

func signedRange(bitWidth int) (int64, int64) {
	if bitWidth >= 64 {
		return math.MinInt64, math.MaxInt64
	}
	maxVal := int64(1)<<uint(bitWidth-1) - 1
	minVal := -(int64(1) << uint(bitWidth-1))
	return minVal, maxVal
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return toInt64(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("datatype: value %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("datatype: non-integer numeric value %v", v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("datatype: expected integer value, got %T", raw)
	}
}

func toFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("datatype: expected numeric value, got %T", raw)
	}
}
