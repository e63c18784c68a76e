// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package memorytag is the Sparkplug B memory tag (component C3): a metric
// that holds its value in process memory instead of delegating reads/writes
// to an external resource, optionally persisting it to a JSON file across
// restarts and optionally gating writes through a validator.
package memorytag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/datatype"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/metric"
	"github.com/ClusterCockpit/sparkplug-edge/pkg/log"
)

// File permissions for persisted memory tag state, matching the atomic
// checkpoint-write convention used elsewhere in this module.
const (
	filePerms = 0o644
	dirPerms  = 0o755
)

// WriteValidator gates a prospective write against the tag's current value.
// It returns false to reject the write, leaving the tag's value untouched.
type WriteValidator func(current, new any) bool

// MemoryTag is a Metric whose value lives in an in-process variable rather
// than behind a caller-supplied read/write function, with optional
// durability across process restarts via a JSON persistence file and an
// optional validator gating writes before they commit.
type MemoryTag struct {
	*metric.Metric

	value           any
	writable        bool
	persistenceFile string
	writeValidator  WriteValidator
}

// New constructs a MemoryTag. If persistenceFile is non-empty, the tag's
// value is restored from that file at construction time (the file is
// created holding an empty JSON object if absent, and initialValue is kept
// when the file has no entry for name), and Write persists every
// subsequent change.
// writeValidator, if non-nil, is consulted before every write; returning
// false aborts the write without mutating the tag's value.
func New(name string, dt datatype.Datatype, initialValue any, writable bool, alias uint64, disableAlias, rbeIgnore bool, persistenceFile string, writeValidator WriteValidator) (*MemoryTag, error) {
	v, err := datatype.Coerce(dt, initialValue)
	if err != nil {
		return nil, fmt.Errorf("memorytag %q: invalid initial value: %w", name, err)
	}

	mt := &MemoryTag{
		value:           v,
		writable:        writable,
		persistenceFile: persistenceFile,
		writeValidator:  writeValidator,
	}

	if persistenceFile != "" {
		if err := mt.createPersistenceFile(); err != nil {
			return nil, err
		}
		restored, err := mt.readPersistenceEntry(name, dt)
		if err != nil {
			return nil, err
		}
		if restored != nil {
			mt.value = *restored
		}
	}

	readFn := func() (any, error) {
		return mt.value, nil
	}

	var writeFn metric.WriteFunc
	if writable {
		writeFn = func(v any) error {
			if mt.writeValidator != nil && !mt.writeValidator(mt.value, v) {
				return fmt.Errorf("memorytag %q: write rejected by validator", name)
			}
			mt.value = v
			if mt.persistenceFile != "" {
				return mt.saveToDisk()
			}
			return nil
		}
	}

	mt.Metric = metric.New(name, dt, readFn, writeFn, alias, disableAlias, rbeIgnore)
	mt.Metric.SetPersistence(mt.Persistent, mt.saveToDisk)
	return mt, nil
}

// Persistent reports whether this tag's value survives process restarts.
func (mt *MemoryTag) Persistent() bool {
	return mt.persistenceFile != ""
}

// SaveToDisk exports the tag's save-to-disk behavior so the edge node's
// config-save tick can call it directly (spec.md §4.5's config-save state).
// It is a no-op if the tag has no persistence file.
func (mt *MemoryTag) SaveToDisk() error {
	if mt.persistenceFile == "" {
		return nil
	}
	return mt.saveToDisk()
}

// tagRecord is the per-tag entry a persistence file stores, keyed by tag
// name so several tags can share one file without clobbering each other.
type tagRecord struct {
	Name          string            `json:"name"`
	Alias         uint64            `json:"alias"`
	Writable      bool              `json:"writable"`
	DatatypeValue datatype.Datatype `json:"datatype_value"`
	DisableAlias  bool              `json:"disable_alias"`
	RbeIgnore     bool              `json:"rbe_ignore"`
	Persistent    bool              `json:"persistent"`
	CurrentValue  any               `json:"current_value"`
}

func (mt *MemoryTag) createPersistenceFile() error {
	if _, err := os.Stat(mt.persistenceFile); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("memorytag: cannot stat persistence file %s: %w", mt.persistenceFile, err)
	}

	if err := os.MkdirAll(filepath.Dir(mt.persistenceFile), dirPerms); err != nil {
		return fmt.Errorf("memorytag: cannot create persistence directory: %w", err)
	}
	return writeTagFile(mt.persistenceFile, map[string]tagRecord{})
}

// readPersistenceFile reads the whole keyed persistence file, returning an
// empty map (not an error) if the file is absent or corrupt.
func (mt *MemoryTag) readPersistenceFile() map[string]tagRecord {
	data, err := os.ReadFile(mt.persistenceFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("memorytag: cannot read persistence file %s: %v", mt.persistenceFile, err)
		}
		return map[string]tagRecord{}
	}

	var records map[string]tagRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Warnf("memorytag: persistence file %s is corrupt, ignoring: %v", mt.persistenceFile, err)
		return map[string]tagRecord{}
	}
	return records
}

// readPersistenceEntry looks up name's entry in the persistence file and
// returns its adopted current value, or nil if no entry exists yet.
func (mt *MemoryTag) readPersistenceEntry(name string, dt datatype.Datatype) (*any, error) {
	records := mt.readPersistenceFile()
	rec, ok := records[name]
	if !ok {
		return nil, nil
	}
	v, err := datatype.Coerce(dt, rec.CurrentValue)
	if err != nil {
		log.Warnf("memorytag: persisted value for %q in %s failed to coerce, ignoring: %v", name, mt.persistenceFile, err)
		return nil, nil
	}
	return &v, nil
}

// saveToDisk reads the existing persistence file, overwrites only this
// tag's entry (keyed by name), and writes the whole file back via a
// write-temp-then-rename so a crash mid-write never leaves a truncated
// file behind and co-located tags never clobber each other's entries.
func (mt *MemoryTag) saveToDisk() error {
	records := mt.readPersistenceFile()
	records[mt.Name] = mt.recordFor()
	return writeTagFile(mt.persistenceFile, records)
}

func (mt *MemoryTag) recordFor() tagRecord {
	return tagRecord{
		Name:          mt.Name,
		Alias:         mt.Alias,
		Writable:      mt.writable,
		DatatypeValue: mt.Datatype,
		DisableAlias:  mt.DisableAlias,
		RbeIgnore:     mt.RbeIgnore,
		Persistent:    mt.Persistent(),
		CurrentValue:  mt.value,
	}
}

func writeTagFile(path string, records map[string]tagRecord) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("memorytag: cannot marshal persistence records: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".memorytag-*.tmp")
	if err != nil {
		return fmt.Errorf("memorytag: cannot create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("memorytag: cannot write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("memorytag: cannot close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, filePerms); err != nil {
		return fmt.Errorf("memorytag: cannot chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("memorytag: cannot rename temp file into place: %w", err)
	}
	return nil
}

// GetConfig returns the tag's full config record, matching the shape its
// persistence file stores it under (spec.md §6).
func (mt *MemoryTag) GetConfig() map[string]any {
	rec := mt.recordFor()
	return map[string]any{
		"name":           rec.Name,
		"alias":          rec.Alias,
		"writable":       rec.Writable,
		"datatype_value": rec.DatatypeValue,
		"disable_alias":  rec.DisableAlias,
		"rbe_ignore":     rec.RbeIgnore,
		"persistent":     rec.Persistent,
		"current_value":  rec.CurrentValue,
	}
}
