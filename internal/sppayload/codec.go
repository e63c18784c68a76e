// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sppayload

import (
	"fmt"
	"math"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/datatype"
)

// ReferenceCodec encodes/decodes Payload using the Sparkplug B protobuf
// wire layout by hand (varint/length-delimited), field-number compatible
// with the standard Sparkplug B Payload.proto so bytes produced here are
// readable by any conforming Sparkplug B host application.
type ReferenceCodec struct{}

// NewReferenceCodec constructs the bundled Codec implementation.
func NewReferenceCodec() *ReferenceCodec {
	return &ReferenceCodec{}
}

// Protobuf field numbers, matching the canonical Sparkplug B Payload.proto.
const (
	fieldPayloadTimestamp = 1
	fieldPayloadMetrics   = 2
	fieldPayloadSeq       = 3

	fieldMetricName       = 1
	fieldMetricAlias      = 2
	fieldMetricTimestamp  = 3
	fieldMetricDatatype   = 4
	fieldMetricIsNull     = 7
	fieldMetricProperties = 9
	fieldMetricIntValue    = 10
	fieldMetricLongValue   = 11
	fieldMetricFloatValue  = 12
	fieldMetricDoubleValue = 13
	fieldMetricBoolValue   = 14
	fieldMetricStringValue = 15
	fieldMetricBytesValue  = 16

	fieldPropertySetKeys   = 1
	fieldPropertySetValues = 2

	fieldPropertyValueType        = 1
	fieldPropertyValueIntValue    = 3
	fieldPropertyValueLongValue   = 4
	fieldPropertyValueFloatValue  = 5
	fieldPropertyValueDoubleValue = 6
	fieldPropertyValueBoolValue   = 7
	fieldPropertyValueStringValue = 8
)

const (
	wireVarint = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

// Encode serializes p into Sparkplug B protobuf wire bytes.
func (ReferenceCodec) Encode(p Payload) ([]byte, error) {
	w := newProtoWriter()
	w.writeVarintField(fieldPayloadTimestamp, p.Timestamp)
	for _, m := range p.Metrics {
		mb, err := encodeMetric(m)
		if err != nil {
			return nil, fmt.Errorf("sppayload: encode metric %q: %w", m.Name, err)
		}
		w.writeBytesField(fieldPayloadMetrics, mb)
	}
	if p.Seq != nil {
		w.writeVarintField(fieldPayloadSeq, *p.Seq)
	}
	return w.bytes(), nil
}

func encodeMetric(m Metric) ([]byte, error) {
	w := newProtoWriter()
	if m.Name != "" {
		w.writeStringField(fieldMetricName, m.Name)
	}
	if m.Alias != nil {
		w.writeVarintField(fieldMetricAlias, *m.Alias)
	}
	if m.Timestamp != 0 {
		w.writeVarintField(fieldMetricTimestamp, m.Timestamp)
	}
	w.writeVarintField(fieldMetricDatatype, uint64(m.Datatype))
	if m.IsNull {
		w.writeVarintField(fieldMetricIsNull, 1)
	}
	if m.Properties != nil {
		pb, err := encodeProperties(*m.Properties)
		if err != nil {
			return nil, err
		}
		w.writeBytesField(fieldMetricProperties, pb)
	}

	if m.IsNull {
		return w.bytes(), nil
	}

	field, err := datatype.WireField(m.Datatype)
	if err != nil {
		return nil, err
	}
	if err := writeScalarValue(w, field, fieldMetricIntValue, fieldMetricLongValue,
		fieldMetricFloatValue, fieldMetricDoubleValue, fieldMetricBoolValue,
		fieldMetricStringValue, fieldMetricBytesValue, m.Value); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

func encodeProperties(props Properties) ([]byte, error) {
	w := newProtoWriter()
	for _, e := range props.Entries {
		w.writeStringField(fieldPropertySetKeys, e.Key)
	}
	for _, e := range props.Entries {
		pv, err := encodePropertyValue(e)
		if err != nil {
			return nil, err
		}
		w.writeBytesField(fieldPropertySetValues, pv)
	}
	return w.bytes(), nil
}

func encodePropertyValue(e Property) ([]byte, error) {
	w := newProtoWriter()
	w.writeVarintField(fieldPropertyValueType, uint64(e.Datatype))
	field, err := datatype.WireField(e.Datatype)
	if err != nil {
		return nil, err
	}
	if err := writeScalarValue(w, field, fieldPropertyValueIntValue, fieldPropertyValueLongValue,
		fieldPropertyValueFloatValue, fieldPropertyValueDoubleValue, fieldPropertyValueBoolValue,
		fieldPropertyValueStringValue, 0, e.Value); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

func writeScalarValue(w *protoWriter, field string, intField, longField, floatField, doubleField, boolField, stringField, bytesField int, value any) error {
	switch field {
	case datatype.FieldInt:
		v, err := asUint64(value)
		if err != nil {
			return err
		}
		w.writeVarintField(intField, v)
	case datatype.FieldLong:
		v, err := asUint64(value)
		if err != nil {
			return err
		}
		w.writeVarintField(longField, v)
	case datatype.FieldFloat:
		v, ok := value.(float32)
		if !ok {
			return fmt.Errorf("sppayload: expected float32 value, got %T", value)
		}
		w.writeFixed32Field(floatField, math.Float32bits(v))
	case datatype.FieldDouble:
		v, ok := value.(float64)
		if !ok {
			return fmt.Errorf("sppayload: expected float64 value, got %T", value)
		}
		w.writeFixed64Field(doubleField, math.Float64bits(v))
	case datatype.FieldBoolean:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("sppayload: expected bool value, got %T", value)
		}
		b := uint64(0)
		if v {
			b = 1
		}
		w.writeVarintField(boolField, b)
	case datatype.FieldString:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("sppayload: expected string value, got %T", value)
		}
		w.writeStringField(stringField, v)
	case datatype.FieldBytes:
		if bytesField == 0 {
			return fmt.Errorf("sppayload: bytes value not supported in this context")
		}
		v, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("sppayload: expected []byte value, got %T", value)
		}
		w.writeBytesField(bytesField, v)
	default:
		return fmt.Errorf("sppayload: unsupported wire field %q", field)
	}
	return nil
}

func asUint64(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case int64:
		return uint64(v), nil
	case int32:
		return uint64(uint32(v)), nil
	case int16:
		return uint64(uint16(v)), nil
	case int8:
		return uint64(uint8(v)), nil
	case int:
		return uint64(v), nil
	default:
		return 0, fmt.Errorf("sppayload: expected integer value, got %T", value)
	}
}

// Decode parses Sparkplug B protobuf wire bytes into a Payload.
func (ReferenceCodec) Decode(data []byte) (Payload, error) {
	r := newProtoReader(data)
	var p Payload
	for !r.done() {
		field, wire, err := r.readTag()
		if err != nil {
			return Payload{}, fmt.Errorf("sppayload: decode: %w", err)
		}
		switch field {
		case fieldPayloadTimestamp:
			v, err := r.readVarint(wire)
			if err != nil {
				return Payload{}, err
			}
			p.Timestamp = v
		case fieldPayloadSeq:
			v, err := r.readVarint(wire)
			if err != nil {
				return Payload{}, err
			}
			p.Seq = &v
		case fieldPayloadMetrics:
			mb, err := r.readBytes(wire)
			if err != nil {
				return Payload{}, err
			}
			m, err := decodeMetric(mb)
			if err != nil {
				return Payload{}, fmt.Errorf("sppayload: decode metric: %w", err)
			}
			p.Metrics = append(p.Metrics, m)
		default:
			if err := r.skip(wire); err != nil {
				return Payload{}, err
			}
		}
	}
	return p, nil
}

func decodeMetric(data []byte) (Metric, error) {
	r := newProtoReader(data)
	var m Metric
	var intVal *uint64
	var longVal *uint64
	var floatVal *float32
	var doubleVal *float64
	var boolVal *bool
	var stringVal *string
	var bytesVal []byte
	var haveBytes bool

	for !r.done() {
		field, wire, err := r.readTag()
		if err != nil {
			return Metric{}, err
		}
		switch field {
		case fieldMetricName:
			s, err := r.readString(wire)
			if err != nil {
				return Metric{}, err
			}
			m.Name = s
		case fieldMetricAlias:
			v, err := r.readVarint(wire)
			if err != nil {
				return Metric{}, err
			}
			m.Alias = &v
		case fieldMetricTimestamp:
			v, err := r.readVarint(wire)
			if err != nil {
				return Metric{}, err
			}
			m.Timestamp = v
		case fieldMetricDatatype:
			v, err := r.readVarint(wire)
			if err != nil {
				return Metric{}, err
			}
			m.Datatype = datatype.Datatype(v)
		case fieldMetricIsNull:
			v, err := r.readVarint(wire)
			if err != nil {
				return Metric{}, err
			}
			m.IsNull = v != 0
		case fieldMetricProperties:
			pb, err := r.readBytes(wire)
			if err != nil {
				return Metric{}, err
			}
			props, err := decodeProperties(pb)
			if err != nil {
				return Metric{}, err
			}
			m.Properties = &props
		case fieldMetricIntValue, fieldMetricLongValue:
			v, err := r.readVarint(wire)
			if err != nil {
				return Metric{}, err
			}
			intVal = &v
			longVal = &v
		case fieldMetricFloatValue:
			v, err := r.readFixed32(wire)
			if err != nil {
				return Metric{}, err
			}
			f := math.Float32frombits(v)
			floatVal = &f
		case fieldMetricDoubleValue:
			v, err := r.readFixed64(wire)
			if err != nil {
				return Metric{}, err
			}
			d := math.Float64frombits(v)
			doubleVal = &d
		case fieldMetricBoolValue:
			v, err := r.readVarint(wire)
			if err != nil {
				return Metric{}, err
			}
			b := v != 0
			boolVal = &b
		case fieldMetricStringValue:
			s, err := r.readString(wire)
			if err != nil {
				return Metric{}, err
			}
			stringVal = &s
		case fieldMetricBytesValue:
			b, err := r.readBytes(wire)
			if err != nil {
				return Metric{}, err
			}
			bytesVal = b
			haveBytes = true
		default:
			if err := r.skip(wire); err != nil {
				return Metric{}, err
			}
		}
	}

	if m.IsNull {
		return m, nil
	}

	field, err := datatype.WireField(m.Datatype)
	if err != nil {
		return Metric{}, err
	}
	switch field {
	case datatype.FieldInt:
		if intVal == nil {
			return Metric{}, fmt.Errorf("sppayload: missing int_value for datatype %v", m.Datatype)
		}
		m.Value = *intVal
	case datatype.FieldLong:
		if longVal == nil {
			return Metric{}, fmt.Errorf("sppayload: missing long_value for datatype %v", m.Datatype)
		}
		m.Value = *longVal
	case datatype.FieldFloat:
		if floatVal == nil {
			return Metric{}, fmt.Errorf("sppayload: missing float_value for datatype %v", m.Datatype)
		}
		m.Value = *floatVal
	case datatype.FieldDouble:
		if doubleVal == nil {
			return Metric{}, fmt.Errorf("sppayload: missing double_value for datatype %v", m.Datatype)
		}
		m.Value = *doubleVal
	case datatype.FieldBoolean:
		if boolVal == nil {
			return Metric{}, fmt.Errorf("sppayload: missing boolean_value for datatype %v", m.Datatype)
		}
		m.Value = *boolVal
	case datatype.FieldString:
		if stringVal == nil {
			return Metric{}, fmt.Errorf("sppayload: missing string_value for datatype %v", m.Datatype)
		}
		m.Value = *stringVal
	case datatype.FieldBytes:
		if !haveBytes {
			return Metric{}, fmt.Errorf("sppayload: missing bytes_value for datatype %v", m.Datatype)
		}
		m.Value = bytesVal
	default:
		return Metric{}, fmt.Errorf("sppayload: unsupported wire field %q", field)
	}
	return m, nil
}

func decodeProperties(data []byte) (Properties, error) {
	r := newProtoReader(data)
	var keys []string
	var values []Property

	for !r.done() {
		field, wire, err := r.readTag()
		if err != nil {
			return Properties{}, err
		}
		switch field {
		case fieldPropertySetKeys:
			s, err := r.readString(wire)
			if err != nil {
				return Properties{}, err
			}
			keys = append(keys, s)
		case fieldPropertySetValues:
			vb, err := r.readBytes(wire)
			if err != nil {
				return Properties{}, err
			}
			p, err := decodePropertyValue(vb)
			if err != nil {
				return Properties{}, err
			}
			values = append(values, p)
		default:
			if err := r.skip(wire); err != nil {
				return Properties{}, err
			}
		}
	}

	if len(keys) != len(values) {
		return Properties{}, fmt.Errorf("sppayload: property set has %d keys but %d values", len(keys), len(values))
	}
	for i := range keys {
		values[i].Key = keys[i]
	}
	return Properties{Entries: values}, nil
}

func decodePropertyValue(data []byte) (Property, error) {
	r := newProtoReader(data)
	var p Property
	var intVal, longVal *uint64
	var floatVal *float32
	var doubleVal *float64
	var boolVal *bool
	var stringVal *string

	for !r.done() {
		field, wire, err := r.readTag()
		if err != nil {
			return Property{}, err
		}
		switch field {
		case fieldPropertyValueType:
			v, err := r.readVarint(wire)
			if err != nil {
				return Property{}, err
			}
			p.Datatype = datatype.Datatype(v)
		case fieldPropertyValueIntValue, fieldPropertyValueLongValue:
			v, err := r.readVarint(wire)
			if err != nil {
				return Property{}, err
			}
			intVal = &v
			longVal = &v
		case fieldPropertyValueFloatValue:
			v, err := r.readFixed32(wire)
			if err != nil {
				return Property{}, err
			}
			f := math.Float32frombits(v)
			floatVal = &f
		case fieldPropertyValueDoubleValue:
			v, err := r.readFixed64(wire)
			if err != nil {
				return Property{}, err
			}
			d := math.Float64frombits(v)
			doubleVal = &d
		case fieldPropertyValueBoolValue:
			v, err := r.readVarint(wire)
			if err != nil {
				return Property{}, err
			}
			b := v != 0
			boolVal = &b
		case fieldPropertyValueStringValue:
			s, err := r.readString(wire)
			if err != nil {
				return Property{}, err
			}
			stringVal = &s
		default:
			if err := r.skip(wire); err != nil {
				return Property{}, err
			}
		}
	}

	field, err := datatype.WireField(p.Datatype)
	if err != nil {
		return Property{}, err
	}
	switch field {
	case datatype.FieldInt:
		if intVal != nil {
			p.Value = *intVal
		}
	case datatype.FieldLong:
		if longVal != nil {
			p.Value = *longVal
		}
	case datatype.FieldFloat:
		if floatVal != nil {
			p.Value = *floatVal
		}
	case datatype.FieldDouble:
		if doubleVal != nil {
			p.Value = *doubleVal
		}
	case datatype.FieldBoolean:
		if boolVal != nil {
			p.Value = *boolVal
		}
	case datatype.FieldString:
		if stringVal != nil {
			p.Value = *stringVal
		}
	}
	return p, nil
}
