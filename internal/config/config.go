// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the edge node's JSON configuration
// file: Sparkplug identity, broker list, scan/save cadence, and the set of
// persistent memory tags to create at startup.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/datatype"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/memorytag"
	"github.com/ClusterCockpit/sparkplug-edge/internal/transport"
)

// BrokerConfig is one candidate MQTT broker entry in the config file.
type BrokerConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	UseTLS   bool   `json:"use_tls,omitempty"`
	Primary  bool   `json:"primary,omitempty"`
}

// ToBrokerInfo converts a config-file broker entry to the transport
// package's BrokerInfo value.
func (b BrokerConfig) ToBrokerInfo() transport.BrokerInfo {
	return transport.BrokerInfo{
		Host:     b.Host,
		Port:     b.Port,
		ClientID: b.ClientID,
		Username: b.Username,
		Password: b.Password,
		UseTLS:   b.UseTLS,
		Primary:  b.Primary,
	}
}

// MemoryTagConfig describes one memory tag to construct at startup. Its
// optional MinValue/MaxValue express spec.md §4.3's write_validator as a
// bounds check a JSON document can carry declaratively — a function value
// itself can't be serialized, so this is the config-file-expressible subset
// of what memorytag.New's writeValidator parameter accepts.
type MemoryTagConfig struct {
	Name            string   `json:"name"`
	Datatype        string   `json:"datatype"`
	InitialValue    any      `json:"initial_value"`
	Writable        bool     `json:"writable,omitempty"`
	Alias           uint64   `json:"alias,omitempty"`
	DisableAlias    bool     `json:"disable_alias,omitempty"`
	RbeIgnore       bool     `json:"rbe_ignore,omitempty"`
	PersistenceFile string   `json:"persistence_file,omitempty"`
	MinValue        *float64 `json:"min_value,omitempty"`
	MaxValue        *float64 `json:"max_value,omitempty"`
}

// ResolvedWriteValidator builds the write_validator memorytag.New expects
// from MinValue/MaxValue, or nil if neither bound is set.
func (m MemoryTagConfig) ResolvedWriteValidator() memorytag.WriteValidator {
	if m.MinValue == nil && m.MaxValue == nil {
		return nil
	}
	min, max := m.MinValue, m.MaxValue
	return func(_, newValue any) bool {
		f, err := toFloat64(newValue)
		if err != nil {
			return false
		}
		if min != nil && f < *min {
			return false
		}
		if max != nil && f > *max {
			return false
		}
		return true
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("config: value %v is not numeric", v)
	}
}

// ResolvedDatatype parses the config file's string datatype name into a
// datatype.Datatype.
func (m MemoryTagConfig) ResolvedDatatype() (datatype.Datatype, error) {
	dt, ok := datatypeByName[m.Datatype]
	if !ok {
		return 0, fmt.Errorf("config: unknown datatype %q for memory tag %q", m.Datatype, m.Name)
	}
	return dt, nil
}

var datatypeByName = map[string]datatype.Datatype{
	"Int8": datatype.Int8, "Int16": datatype.Int16, "Int32": datatype.Int32, "Int64": datatype.Int64,
	"UInt8": datatype.UInt8, "UInt16": datatype.UInt16, "UInt32": datatype.UInt32, "UInt64": datatype.UInt64,
	"Float": datatype.Float, "Double": datatype.Double, "Boolean": datatype.Boolean,
	"String": datatype.String, "DateTime": datatype.DateTime, "Text": datatype.Text,
	"UUID": datatype.UUID, "Bytes": datatype.Bytes, "File": datatype.File,
}

// FileConfig is the decoded shape of the node's JSON configuration file.
type FileConfig struct {
	GroupID          string            `json:"group_id"`
	EdgeID           string            `json:"edge_id"`
	ScanRateMs       int64             `json:"scan_rate_ms,omitempty"`
	ConfigSaveRateMs int64             `json:"config_save_rate_ms,omitempty"`
	ConfigFilePath   string            `json:"config_file_path,omitempty"`
	Brokers          []BrokerConfig    `json:"brokers"`
	MemoryTags       []MemoryTagConfig `json:"memory_tags,omitempty"`
}

// Load reads, schema-validates, and decodes the node configuration file at
// path. Validation failure or an unknown field in the JSON is a fatal
// configuration error, matching the teacher's own
// jsonschema-then-DisallowUnknownFields decode sequence.
func Load(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %s: %w", path, err)
	}

	if err := Validate(nodeConfigSchema, data); err != nil {
		return nil, fmt.Errorf("config: %s failed validation: %w", path, err)
	}

	var fc FileConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("config: cannot decode %s: %w", path, err)
	}

	return &fc, nil
}
