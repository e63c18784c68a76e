// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package edgenode

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/metric"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sppayload"
	"github.com/ClusterCockpit/sparkplug-edge/internal/transport"
	"github.com/ClusterCockpit/sparkplug-edge/pkg/log"
)

// valuesEqual compares two coerced metric values for RBE suppression.
// []byte is not comparable with ==, so it is compared by content instead.
func valuesEqual(a, b any) bool {
	ab, aIsBytes := a.([]byte)
	bb, bIsBytes := b.([]byte)
	if aIsBytes || bIsBytes {
		return aIsBytes && bIsBytes && bytes.Equal(ab, bb)
	}
	return a == b
}

// Read scans every configured metric. When rbe is true (Report By
// Exception), a metric whose freshly read value equals the value from its
// previous read or write and is not RbeIgnore is left out of the NDATA
// payload; RbeIgnore metrics and value changes always report. When rbe is
// false, every metric reports unconditionally.
func (n *Node) Read(ctx context.Context, rbe bool) error {
	n.mu.Lock()
	n.lastScan = time.Now()
	n.mu.Unlock()

	entries := make([]sppayload.Metric, 0, len(n.metrics))
	for _, m := range n.metrics {
		previous, hadPrevious := m.LastValue()
		entry, err := m.AsRbeMetric()
		if err != nil {
			log.Warnf("edgenode: scan of metric %q failed: %v", m.Name, err)
			continue
		}
		current, _ := m.LastValue()
		if rbe && !m.RbeIgnore && hadPrevious && valuesEqual(previous, current) {
			continue
		}
		entries = append(entries, rbeEntryToPayloadMetric(entry))
	}

	if len(entries) == 0 {
		return nil
	}
	return n.publishNData(ctx, entries)
}

func rbeEntryToPayloadMetric(e metric.RbeEntry) sppayload.Metric {
	m := sppayload.Metric{
		Timestamp: uint64(time.Now().UnixMilli()),
		Datatype:  e.Datatype,
		Value:     e.Value,
	}
	if e.HasName {
		m.Name = e.Name
	}
	if e.HasAlias {
		a := e.Alias
		m.Alias = &a
	}
	return m
}

func (n *Node) publishNData(ctx context.Context, entries []sppayload.Metric) error {
	seq := n.seq.Next()
	payload := sppayload.Payload{
		Timestamp: uint64(time.Now().UnixMilli()),
		Seq:       &seq,
		Metrics:   entries,
	}
	return n.publish(ctx, n.topics.NDATA, payload, false)
}

func (n *Node) publishNBirth(ctx context.Context, rebirth bool) error {
	payload, err := n.buildNBirthPayload(rebirth)
	if err != nil {
		return fmt.Errorf("edgenode: cannot build NBIRTH: %w", err)
	}
	return n.publish(ctx, n.topics.NBIRTH, payload, false)
}

func (n *Node) publishNDeath(ctx context.Context) error {
	payload := n.buildNDeathPayload()
	return n.publish(ctx, n.topics.NDEATH, payload, false)
}

func (n *Node) publish(ctx context.Context, topic string, payload sppayload.Payload, retain bool) error {
	data, err := n.codec.Encode(payload)
	if err != nil {
		return fmt.Errorf("edgenode: encode payload for %s: %w", topic, err)
	}
	id, err := n.transport.Publish(ctx, transport.Message{Topic: topic, Payload: data, Qos: 0, Retain: retain})
	if err != nil {
		return fmt.Errorf("edgenode: publish to %s: %w", topic, err)
	}
	n.recordPublishID(id)
	return nil
}
