// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metric is the Sparkplug B metric model (component C2): a named,
// typed value backed by read/write functions supplied by the caller, with
// optional alias, RBE suppression, and lifecycle hooks.
package metric

import (
	"fmt"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/datatype"
)

// ReadFunc produces the current value of a metric in its canonical
// representation. It is called on every scan tick.
type ReadFunc func() (any, error)

// WriteFunc applies an externally supplied value (already coerced to the
// metric's datatype) to the underlying resource.
type WriteFunc func(value any) error

// Metric is a single Sparkplug B metric: a name, a datatype, and the
// functions that read and (optionally) write its value.
type Metric struct {
	Name         string
	Datatype     datatype.Datatype
	Alias        uint64
	DisableAlias bool
	RbeIgnore    bool

	readFn  ReadFunc
	writeFn WriteFunc

	// OnRead/OnWrite are invoked, if set, after a successful read/write,
	// letting a caller react to a metric change without polling it.
	OnRead  func(value any)
	OnWrite func(value any)

	lastValue    any
	hasLastValue bool

	// persistentFn/saveFn, if wired by SetPersistence, let a specialization
	// (MemoryTag) participate in the edge node's config-save tick without
	// the node needing to know about MemoryTag itself.
	persistentFn func() bool
	saveFn       func() error
}

// New constructs a Metric. writeFn may be nil for a read-only metric.
func New(name string, dt datatype.Datatype, readFn ReadFunc, writeFn WriteFunc, alias uint64, disableAlias, rbeIgnore bool) *Metric {
	return &Metric{
		Name:         name,
		Datatype:     dt,
		Alias:        alias,
		DisableAlias: disableAlias,
		RbeIgnore:    rbeIgnore,
		readFn:       readFn,
		writeFn:      writeFn,
	}
}

// Writable reports whether the metric accepts NCMD writes.
func (m *Metric) Writable() bool {
	return m.writeFn != nil
}

// Read invokes the metric's read function, coerces the result to its
// datatype, records it as the last known value, and fires OnRead.
func (m *Metric) Read() (any, error) {
	if m.readFn == nil {
		return nil, fmt.Errorf("metric %q: no read function", m.Name)
	}
	raw, err := m.readFn()
	if err != nil {
		return nil, fmt.Errorf("metric %q: read failed: %w", m.Name, err)
	}
	v, err := datatype.Coerce(m.Datatype, raw)
	if err != nil {
		return nil, fmt.Errorf("metric %q: %w", m.Name, err)
	}
	m.lastValue = v
	m.hasLastValue = true
	if m.OnRead != nil {
		m.OnRead(v)
	}
	return v, nil
}

// Write coerces value to the metric's datatype and applies it via the
// metric's write function. Returns an error for a read-only metric.
func (m *Metric) Write(value any) error {
	if m.writeFn == nil {
		return fmt.Errorf("metric %q: not writable", m.Name)
	}
	v, err := datatype.Coerce(m.Datatype, value)
	if err != nil {
		return fmt.Errorf("metric %q: %w", m.Name, err)
	}
	if err := m.writeFn(v); err != nil {
		return fmt.Errorf("metric %q: write failed: %w", m.Name, err)
	}
	m.lastValue = v
	m.hasLastValue = true
	if m.OnWrite != nil {
		m.OnWrite(v)
	}
	return nil
}

// LastValue returns the most recently read or written value, and whether
// one has been recorded yet.
func (m *Metric) LastValue() (any, bool) {
	return m.lastValue, m.hasLastValue
}

// SetPersistence wires optional persistence hooks into the metric. A
// specialization such as MemoryTag calls this from its own constructor so
// the edge node's config-save tick can persist it without depending on the
// concrete MemoryTag type.
func (m *Metric) SetPersistence(persistent func() bool, save func() error) {
	m.persistentFn = persistent
	m.saveFn = save
}

// Persistent reports whether this metric owns a persistence hook and that
// hook currently considers itself persistent (e.g. a MemoryTag constructed
// with a persistence file).
func (m *Metric) Persistent() bool {
	return m.persistentFn != nil && m.persistentFn()
}

// SaveToDisk invokes the metric's persistence hook, if any. It is a no-op
// for a metric that is not Persistent.
func (m *Metric) SaveToDisk() error {
	if m.saveFn == nil || !m.Persistent() {
		return nil
	}
	return m.saveFn()
}

// IntToUint reinterprets v as the unsigned bit pattern appropriate for this
// metric's datatype, for placement into the signed wire field.
func (m *Metric) IntToUint(v int64) uint64 {
	width := datatype.BitWidth(m.Datatype)
	if width == 0 {
		width = 32
	}
	return datatype.IntToUint(v, width)
}

// ValueForPayload reads the current value and converts it into the wire
// representation (wire field name, canonical value) a Payload codec needs.
func (m *Metric) ValueForPayload() (field string, value any, err error) {
	v, err := m.Read()
	if err != nil {
		return "", nil, err
	}
	return m.valueForPayloadFrom(v)
}

func (m *Metric) valueForPayloadFrom(v any) (string, any, error) {
	field, err := datatype.WireField(m.Datatype)
	if err != nil {
		return "", nil, fmt.Errorf("metric %q: %w", m.Name, err)
	}
	if datatype.IsUnsigned(m.Datatype) {
		iv, err := toInt64ForWire(v)
		if err != nil {
			return "", nil, fmt.Errorf("metric %q: %w", m.Name, err)
		}
		return field, m.IntToUint(iv), nil
	}
	return field, v, nil
}

func toInt64ForWire(v any) (int64, error) {
	switch n := v.(type) {
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected unsigned integer value, got %T", v)
	}
}

// BirthEntry is the (name, alias, datatype, value, properties) tuple a
// metric contributes to an NBIRTH payload.
type BirthEntry struct {
	Name       string
	Alias      uint64
	HasAlias   bool
	Datatype   datatype.Datatype
	WireField  string
	Value      any
	Properties map[string]any
}

// AsBirthMetric reads the current value and returns the full entry an
// NBIRTH payload includes for this metric: name always present, alias
// present unless DisableAlias, plus any caller-supplied properties.
func (m *Metric) AsBirthMetric(properties map[string]any) (BirthEntry, error) {
	field, value, err := m.ValueForPayload()
	if err != nil {
		return BirthEntry{}, err
	}
	return BirthEntry{
		Name:       m.Name,
		Alias:      m.Alias,
		HasAlias:   !m.DisableAlias,
		Datatype:   m.Datatype,
		WireField:  field,
		Value:      value,
		Properties: properties,
	}, nil
}

// RbeEntry is the (alias-or-name, value) tuple a metric contributes to an
// NDATA payload. Aliased metrics omit the name to save wire bytes, matching
// birth/data asymmetry used by Sparkplug B encoders.
type RbeEntry struct {
	Name      string
	HasName   bool
	Alias     uint64
	HasAlias  bool
	Datatype  datatype.Datatype
	WireField string
	Value     any
}

// AsRbeMetric reads the current value and returns the entry an NDATA
// payload includes for this metric.
func (m *Metric) AsRbeMetric() (RbeEntry, error) {
	field, value, err := m.ValueForPayload()
	if err != nil {
		return RbeEntry{}, err
	}
	hasAlias := !m.DisableAlias
	return RbeEntry{
		Name:      m.Name,
		HasName:   !hasAlias,
		Alias:     m.Alias,
		HasAlias:  hasAlias,
		Datatype:  m.Datatype,
		WireField: field,
		Value:     value,
	}, nil
}

// MakeProperties builds a Sparkplug B metric properties map from a set of
// named boolean/string flags, generalizing beyond a single "readOnly" flag
// so callers can attach arbitrary property sets (e.g. "readOnly", "unit",
// "tooltip") to a birth metric.
func MakeProperties(props map[string]any) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
