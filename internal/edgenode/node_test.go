// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package edgenode

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/datatype"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/memorytag"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/metric"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sppayload"
	"github.com/ClusterCockpit/sparkplug-edge/internal/transport"
)

func withFakeTransport(t *testing.T) *fakeTransport {
	t.Helper()
	ft := newFakeTransport()
	original := newTransportClient
	newTransportClient = func(transport.BrokerInfo) transport.Client { return ft }
	t.Cleanup(func() { newTransportClient = original })
	return ft
}

func metricByValue(metrics []sppayload.Metric, name string) (sppayload.Metric, bool) {
	for _, m := range metrics {
		if m.Name == name {
			return m, true
		}
	}
	return sppayload.Metric{}, false
}

// S1 — Birth sequence.
func TestBirthSequence(t *testing.T) {
	ft := withFakeTransport(t)
	codec := sppayload.NewReferenceCodec()

	temp := metric.New("temp", datatype.Int64, func() (any, error) { return int64(42), nil }, nil, 0, true, false)

	n, err := New(Config{GroupID: "Factory", EdgeID: "Line1"},
		[]transport.BrokerInfo{{Host: "broker", Port: 1883}},
		[]*metric.Metric{temp}, codec)
	require.NoError(t, err)

	require.NoError(t, n.StartClient(context.Background()))
	t.Cleanup(n.StopClient)

	require.NotNil(t, ft.will)
	assert.Equal(t, "spBv1.0/Factory/NDEATH/Line1", ft.will.Topic)
	deathPayload, err := codec.Decode(ft.will.Payload)
	require.NoError(t, err)
	bdSeqDeath, ok := metricByValue(deathPayload.Metrics, "bdSeq")
	require.True(t, ok)
	assert.Equal(t, uint64(0), bdSeqDeath.Value)

	birth, ok := ft.lastPublished("spBv1.0/Factory/NBIRTH/Line1")
	require.True(t, ok)
	birthPayload, err := codec.Decode(birth.Payload)
	require.NoError(t, err)
	require.NotNil(t, birthPayload.Seq)
	assert.Equal(t, uint64(0), *birthPayload.Seq)

	bdSeqBirth, ok := metricByValue(birthPayload.Metrics, "bdSeq")
	require.True(t, ok)
	assert.Equal(t, uint64(0), bdSeqBirth.Value)

	rebirth, ok := metricByValue(birthPayload.Metrics, MetricRebirth)
	require.True(t, ok)
	assert.Equal(t, false, rebirth.Value)

	tempEntry, ok := metricByValue(birthPayload.Metrics, "temp")
	require.True(t, ok)
	assert.Equal(t, int64(42), tempEntry.Value)

	scanRate, ok := metricByValue(birthPayload.Metrics, MetricScanRate)
	require.True(t, ok)
	assert.Equal(t, int64(1000), scanRate.Value)
}

// S2 — RBE suppression.
func TestRbeSuppressesUnchangedValue(t *testing.T) {
	ft := withFakeTransport(t)
	codec := sppayload.NewReferenceCodec()

	temp := metric.New("temp", datatype.Int64, func() (any, error) { return int64(42), nil }, nil, 0, true, false)

	n, err := New(Config{GroupID: "Factory", EdgeID: "Line1", ScanRateMs: 500},
		[]transport.BrokerInfo{{Host: "broker", Port: 1883}},
		[]*metric.Metric{temp}, codec)
	require.NoError(t, err)
	require.NoError(t, n.StartClient(context.Background()))
	t.Cleanup(n.StopClient)

	before := ft.countPublished("spBv1.0/Factory/NDATA/Line1")
	require.NoError(t, n.Read(context.Background(), true))
	after := ft.countPublished("spBv1.0/Factory/NDATA/Line1")
	assert.Equal(t, before, after, "unchanged metric must not produce an NDATA publish")
}

// S3 — NCMD write.
func TestNCmdWriteUpdatesMemoryTagAndPublishesNData(t *testing.T) {
	ft := withFakeTransport(t)
	codec := sppayload.NewReferenceCodec()

	greeting, err := memorytag.New("greeting", datatype.String, "hi", true, 0, true, false, "", nil)
	require.NoError(t, err)

	n, err := New(Config{GroupID: "Factory", EdgeID: "Line1"},
		[]transport.BrokerInfo{{Host: "broker", Port: 1883}},
		[]*metric.Metric{greeting.Metric}, codec)
	require.NoError(t, err)
	require.NoError(t, n.StartClient(context.Background()))
	t.Cleanup(n.StopClient)

	ncmd := sppayload.Payload{
		Metrics: []sppayload.Metric{
			{Name: "greeting", Datatype: datatype.String, Value: "hello"},
		},
	}
	data, err := codec.Encode(ncmd)
	require.NoError(t, err)
	ft.deliver("spBv1.0/Factory/NCMD/Line1", data)

	v, err := greeting.Read()
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	ndata, ok := ft.lastPublished("spBv1.0/Factory/NDATA/Line1")
	require.True(t, ok)
	payload, err := codec.Decode(ndata.Payload)
	require.NoError(t, err)
	require.NotNil(t, payload.Seq)
	assert.Equal(t, uint64(1), *payload.Seq)
	entry, ok := metricByValue(payload.Metrics, "greeting")
	require.True(t, ok)
	assert.Equal(t, "hello", entry.Value)
}

// S4 — Rebirth.
func TestRebirthKeepsLiveBdSeq(t *testing.T) {
	ft := withFakeTransport(t)
	codec := sppayload.NewReferenceCodec()

	n, err := New(Config{GroupID: "Factory", EdgeID: "Line1"},
		[]transport.BrokerInfo{{Host: "broker", Port: 1883}},
		nil, codec)
	require.NoError(t, err)

	n.bdSeq.Set(3)
	n.transport = ft
	n.connected = true
	n.connectedOnce = true

	ncmd := sppayload.Payload{
		Metrics: []sppayload.Metric{
			{Name: MetricRebirth, Datatype: datatype.Boolean, Value: true},
		},
	}
	data, err := codec.Encode(ncmd)
	require.NoError(t, err)
	n.onNCmdMessage("spBv1.0/Factory/NCMD/Line1", data)

	birth, ok := ft.lastPublished("spBv1.0/Factory/NBIRTH/Line1")
	require.True(t, ok)
	payload, err := codec.Decode(birth.Payload)
	require.NoError(t, err)
	require.NotNil(t, payload.Seq)
	assert.Equal(t, uint64(0), *payload.Seq)
	bdSeq, ok := metricByValue(payload.Metrics, "bdSeq")
	require.True(t, ok)
	assert.Equal(t, uint64(3), bdSeq.Value)
}

// S5 — Scan-rate change.
func TestScanRateCommandAcceptsInRangeRejectsOutOfRange(t *testing.T) {
	ft := withFakeTransport(t)
	codec := sppayload.NewReferenceCodec()

	n, err := New(Config{GroupID: "Factory", EdgeID: "Line1"},
		[]transport.BrokerInfo{{Host: "broker", Port: 1883}},
		nil, codec)
	require.NoError(t, err)
	require.NoError(t, n.StartClient(context.Background()))
	t.Cleanup(n.StopClient)

	accept := sppayload.Payload{Metrics: []sppayload.Metric{
		{Name: MetricScanRate, Datatype: datatype.Int64, Value: int64(2000)},
	}}
	data, err := codec.Encode(accept)
	require.NoError(t, err)
	ft.deliver("spBv1.0/Factory/NCMD/Line1", data)

	v, err := n.scanRateTag.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(2000), v)

	reject := sppayload.Payload{Metrics: []sppayload.Metric{
		{Name: MetricScanRate, Datatype: datatype.Int64, Value: int64(400)},
	}}
	data, err = codec.Encode(reject)
	require.NoError(t, err)
	ft.deliver("spBv1.0/Factory/NCMD/Line1", data)

	v, err = n.scanRateTag.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(2000), v, "out-of-range scan rate must leave the tag unchanged")
}

func TestReservedMetricNameRejected(t *testing.T) {
	codec := sppayload.NewReferenceCodec()
	bad := metric.New(MetricScanRate, datatype.Int64, func() (any, error) { return int64(1), nil }, nil, 0, true, false)
	_, err := New(Config{GroupID: "Factory", EdgeID: "Line1"},
		[]transport.BrokerInfo{{Host: "broker", Port: 1883}},
		[]*metric.Metric{bad}, codec)
	assert.Error(t, err)
}

func TestReservedGroupIDRejected(t *testing.T) {
	codec := sppayload.NewReferenceCodec()
	_, err := New(Config{GroupID: "STATE", EdgeID: "Line1"},
		[]transport.BrokerInfo{{Host: "broker", Port: 1883}},
		nil, codec)
	assert.Error(t, err)
}

// S6 — Config-save tick persists both node config and memory tags.
func TestSaveConfigWritesNestedNodeConfigFile(t *testing.T) {
	codec := sppayload.NewReferenceCodec()
	dir := t.TempDir()
	path := filepath.Join(dir, "node.json")

	n, err := New(Config{GroupID: "Factory", EdgeID: "Line1", ScanRateMs: 1500, ConfigSaveRateMs: 30_000, ConfigFilePath: path},
		[]transport.BrokerInfo{{Host: "broker", Port: 1883}},
		nil, codec)
	require.NoError(t, err)
	n.bdSeq.Set(7)

	require.NoError(t, n.SaveConfig())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, float64(7), parsed["bdSeq"])
	args, ok := parsed["recreate_node_args"].(map[string]any)
	require.True(t, ok, "recreate_node_args must be a nested object")
	assert.Equal(t, float64(1500), args["scan_rate"])
	assert.Equal(t, float64(30_000), args["config_save_rate"])

	n2, err := New(Config{GroupID: "Factory", EdgeID: "Line1", ConfigFilePath: path},
		[]transport.BrokerInfo{{Host: "broker", Port: 1883}},
		nil, codec)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n2.bdSeq.Current())
	assert.Equal(t, int64(1500), n2.cfg.ScanRateMs)
	assert.Equal(t, int64(30_000), n2.cfg.ConfigSaveRateMs)
}

func TestSaveConfigPersistsMemoryTags(t *testing.T) {
	codec := sppayload.NewReferenceCodec()
	dir := t.TempDir()
	tagPath := filepath.Join(dir, "tags.json")

	setpoint, err := memorytag.New("Setpoint", datatype.Double, 1.0, true, 0, true, false, tagPath, nil)
	require.NoError(t, err)

	n, err := New(Config{GroupID: "Factory", EdgeID: "Line1"},
		[]transport.BrokerInfo{{Host: "broker", Port: 1883}},
		[]*metric.Metric{setpoint.Metric}, codec)
	require.NoError(t, err)

	require.NoError(t, setpoint.Write(9.5))
	require.NoError(t, n.SaveConfig())

	raw, err := os.ReadFile(tagPath)
	require.NoError(t, err)
	var records map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &records))
	rec, ok := records["Setpoint"]
	require.True(t, ok)
	assert.Equal(t, 9.5, rec["current_value"])
}
