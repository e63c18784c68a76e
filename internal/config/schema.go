// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

// nodeConfigSchema is the jsonschema the node's JSON configuration file
// must satisfy before it is decoded, mirroring the teacher's inline
// jsonschema-string-literal convention for its own metric store config.
const nodeConfigSchema = `
{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "sparkplug-edge node configuration",
  "type": "object",
  "properties": {
    "group_id": { "type": "string", "minLength": 1 },
    "edge_id": { "type": "string", "minLength": 1 },
    "scan_rate_ms": { "type": "integer", "minimum": 0 },
    "config_save_rate_ms": { "type": "integer", "minimum": 0 },
    "config_file_path": { "type": "string" },
    "brokers": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "host": { "type": "string", "minLength": 1 },
          "port": { "type": "integer", "minimum": 1, "maximum": 65535 },
          "client_id": { "type": "string" },
          "username": { "type": "string" },
          "password": { "type": "string" },
          "use_tls": { "type": "boolean" },
          "primary": { "type": "boolean" }
        },
        "required": ["host", "port"]
      }
    },
    "memory_tags": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "datatype": { "type": "string", "minLength": 1 },
          "initial_value": {},
          "writable": { "type": "boolean" },
          "alias": { "type": "integer", "minimum": 0 },
          "disable_alias": { "type": "boolean" },
          "rbe_ignore": { "type": "boolean" },
          "persistence_file": { "type": "string" },
          "min_value": { "type": "number" },
          "max_value": { "type": "number" }
        },
        "required": ["name", "datatype"]
      }
    }
  },
  "required": ["group_id", "edge_id", "brokers"]
}
`
