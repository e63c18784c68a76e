// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package edgenode

import (
	"context"
	"errors"
	"time"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/metric"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sppayload"
	"github.com/ClusterCockpit/sparkplug-edge/pkg/log"
)

var errUnsupportedScanRateType = errors.New("edgenode: scan rate value must be an integer")

// scanRateLowerBound and scanRateUpperBound are the exclusive bounds an
// NCMD-supplied scan rate must fall strictly within, matching the
// original's inline "499 < new_scan_rate < 3600001" check.
const (
	scanRateLowerBound = 499
	scanRateUpperBound = 3_600_001
)

// onNCmdMessage dispatches an inbound NCMD payload: a rebirth request
// triggers a fresh NBIRTH, a scan-rate write updates the node's scan
// cadence, and any other name is matched against the configured metrics
// and written through.
func (n *Node) onNCmdMessage(_ string, payload []byte) {
	p, err := n.codec.Decode(payload)
	if err != nil {
		log.Warnf("edgenode: cannot decode NCMD payload: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, m := range p.Metrics {
		switch m.Name {
		case MetricRebirth:
			n.handleRebirthCommand(ctx, m.Value)
		case MetricScanRate:
			n.handleScanRateCommand(ctx, m.Value)
		case "":
			log.Warn("edgenode: NCMD metric has no name and no alias resolution is configured")
		default:
			n.handleMetricWrite(ctx, m.Name, m.Value)
		}
	}
}

func (n *Node) handleRebirthCommand(ctx context.Context, value any) {
	trigger, ok := value.(bool)
	if !ok || !trigger {
		return
	}
	if err := n.publishNBirth(ctx, true); err != nil {
		log.Errorf("edgenode: rebirth failed: %v", err)
	}
}

func (n *Node) handleScanRateCommand(ctx context.Context, value any) {
	ms, err := asInt64(value)
	if err != nil {
		log.Warnf("edgenode: NCMD scan rate value rejected: %v", err)
		return
	}
	if ms <= scanRateLowerBound || ms >= scanRateUpperBound {
		log.Warnf("edgenode: NCMD scan rate %d out of bounds (%d, %d)", ms, scanRateLowerBound, scanRateUpperBound)
		return
	}

	if err := n.scanRateTag.Write(ms); err != nil {
		log.Warnf("edgenode: cannot apply NCMD scan rate: %v", err)
		return
	}
	n.mu.Lock()
	n.cfg.ScanRateMs = ms
	n.mu.Unlock()

	n.publishMetricChange(ctx, n.scanRateTag.Metric)
}

func (n *Node) handleMetricWrite(ctx context.Context, name string, value any) {
	m, ok := n.metricByName[name]
	if !ok {
		log.Warnf("edgenode: NCMD references unknown metric %q", name)
		return
	}
	if err := m.Write(value); err != nil {
		log.Warnf("edgenode: NCMD write to %q failed: %v", name, err)
		return
	}
	n.publishMetricChange(ctx, m)
}

func (n *Node) publishMetricChange(ctx context.Context, m *metric.Metric) {
	entry, err := m.AsRbeMetric()
	if err != nil {
		log.Warnf("edgenode: cannot build NDATA entry for %q: %v", m.Name, err)
		return
	}
	if err := n.publishNData(ctx, []sppayload.Metric{rbeEntryToPayloadMetric(entry)}); err != nil {
		log.Warnf("edgenode: NDATA publish for %q failed: %v", m.Name, err)
	}
}

func asInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case int:
		return int64(v), nil
	default:
		return 0, errUnsupportedScanRateType
	}
}
