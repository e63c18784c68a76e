// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sppayload models the Sparkplug B protobuf Payload and fronts it
// behind a Codec interface (spec.md §6 treats the protobuf encoding as an
// external collaborator, specified at its interface). Codec's bundled
// implementation encodes/decodes the wire format by hand so the rest of the
// system can be exercised without a .proto code-generation step.
package sppayload

import "github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/datatype"

// Property is a single named entry in a Sparkplug B PropertySet, restricted
// to the scalar set this edge node needs (boolean/string/numeric flags such
// as "readOnly" or an engineering-units tag).
type Property struct {
	Key      string
	Datatype datatype.Datatype
	Value    any
}

// Properties is the PropertySet attached to a birth metric.
type Properties struct {
	Entries []Property
}

// Metric is the Go shape of a Sparkplug B Payload.Metric.
type Metric struct {
	Name       string
	Alias      *uint64
	Timestamp  uint64
	Datatype   datatype.Datatype
	IsNull     bool
	Value      any // one of: int64, uint64, float32, float64, bool, string, []byte
	Properties *Properties
}

// Payload is the Go shape of a Sparkplug B Payload message: NBIRTH, NDEATH,
// NDATA, and NCMD all use this same envelope.
type Payload struct {
	Timestamp uint64
	Seq       *uint64
	Metrics   []Metric
}

// Codec encodes/decodes a Payload to/from the Sparkplug B wire format. The
// edge node runtime depends only on this interface; ReferenceCodec is the
// bundled implementation.
type Codec interface {
	Encode(p Payload) ([]byte, error)
	Decode(data []byte) (Payload, error)
}
