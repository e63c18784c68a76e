// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package edgenode

import (
	"time"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/datatype"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/metric"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sppayload"
)

// bdSeqMetricName is the well-known Sparkplug B metric name carrying the
// birth-death sequence number in both NBIRTH and NDEATH.
const bdSeqMetricName = "bdSeq"

// buildNBirthPayload assembles the NBIRTH payload: bdSeq, followed by the
// node-control metrics and every configured metric's birth entry. bdSeq is
// always the session's current value, whether this is the session's first
// birth or a later rebirth — rebirth does not open a new MQTT session, so
// it must keep publishing the same bdSeq the live Will already bound. seq
// is reset to zero as a side effect, per the NBIRTH contract.
func (n *Node) buildNBirthPayload(rebirth bool) (sppayload.Payload, error) {
	n.mu.Lock()
	bdSeqValue := n.bdSeq.Current()
	n.mu.Unlock()
	n.seq.Reset()

	now := uint64(time.Now().UnixMilli())
	seq := n.seq.Current()

	metrics := make([]sppayload.Metric, 0, len(n.metrics)+3)
	metrics = append(metrics, sppayload.Metric{
		Name:      bdSeqMetricName,
		Timestamp: now,
		Datatype:  datatype.UInt64,
		Value:     bdSeqValue,
	})

	for _, controlMetric := range []*metric.Metric{n.rebirthTag.Metric, n.scanRateTag.Metric} {
		entry, err := controlMetric.AsBirthMetric(map[string]any{"readOnly": !controlMetric.Writable()})
		if err != nil {
			return sppayload.Payload{}, err
		}
		metrics = append(metrics, birthEntryToPayloadMetric(entry, now))
	}

	for _, m := range n.metrics {
		entry, err := m.AsBirthMetric(map[string]any{"readOnly": !m.Writable()})
		if err != nil {
			return sppayload.Payload{}, err
		}
		metrics = append(metrics, birthEntryToPayloadMetric(entry, now))
	}

	return sppayload.Payload{
		Timestamp: now,
		Seq:       &seq,
		Metrics:   metrics,
	}, nil
}

// buildNDeathPayload assembles the NDEATH payload: just bdSeq, matching
// the Sparkplug B death-certificate contract. Publishing NDEATH also
// resets seq, since the session that follows (reconnect or rebirth) starts
// its own sequence from zero.
func (n *Node) buildNDeathPayload() sppayload.Payload {
	n.mu.Lock()
	bdSeqValue := n.bdSeq.Current()
	n.mu.Unlock()
	n.seq.Reset()

	now := uint64(time.Now().UnixMilli())
	return sppayload.Payload{
		Timestamp: now,
		Metrics: []sppayload.Metric{
			{
				Name:      bdSeqMetricName,
				Timestamp: now,
				Datatype:  datatype.UInt64,
				Value:     bdSeqValue,
			},
		},
	}
}

func birthEntryToPayloadMetric(e metric.BirthEntry, now uint64) sppayload.Metric {
	var alias *uint64
	if e.HasAlias {
		a := e.Alias
		alias = &a
	}
	var props *sppayload.Properties
	if len(e.Properties) > 0 {
		entries := make([]sppayload.Property, 0, len(e.Properties))
		for k, v := range e.Properties {
			dt, val := propertyDatatypeValue(v)
			entries = append(entries, sppayload.Property{Key: k, Datatype: dt, Value: val})
		}
		props = &sppayload.Properties{Entries: entries}
	}
	return sppayload.Metric{
		Name:       e.Name,
		Alias:      alias,
		Timestamp:  now,
		Datatype:   e.Datatype,
		Value:      e.Value,
		Properties: props,
	}
}

func propertyDatatypeValue(v any) (datatype.Datatype, any) {
	switch t := v.(type) {
	case bool:
		return datatype.Boolean, t
	case string:
		return datatype.String, t
	case int64:
		return datatype.Int64, t
	case float64:
		return datatype.Double, t
	default:
		return datatype.String, ""
	}
}
