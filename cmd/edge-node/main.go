// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"golang.org/x/sync/errgroup"

	"github.com/ClusterCockpit/sparkplug-edge/internal/config"
	"github.com/ClusterCockpit/sparkplug-edge/internal/edgenode"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/memorytag"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/metric"
	"github.com/ClusterCockpit/sparkplug-edge/internal/sppayload"
	"github.com/ClusterCockpit/sparkplug-edge/internal/transport"
	"github.com/ClusterCockpit/sparkplug-edge/pkg/log"
	"github.com/ClusterCockpit/sparkplug-edge/pkg/runtimeEnv"
)

func main() {
	var flagConfigFile, flagLogLevel string
	var flagGops, flagLogDate bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Load node configuration from `file`")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Minimum log level: debug, info, warn, err")
	flag.BoolVar(&flagLogDate, "logdate", false, "Prefix log lines with date and time")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDate)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	fc, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatal(err)
	}

	node, err := buildNode(fc)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := node.StartClient(ctx); err != nil {
		log.Fatalf("starting edge node failed: %s", err.Error())
	}
	runtimeEnv.SystemdNotifiy(true, "running")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return node.LoopForever(gCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorf("edge node loop exited: %s", err.Error())
	}

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	node.StopClient()
	log.Print("sparkplug-edge node shut down")
}

// buildNode wires the file configuration's memory tags and brokers into a
// running edgenode.Node. Real process metrics are expected to be attached by
// site-specific deployments; this entrypoint only exposes memory tags
// declared in the configuration file.
func buildNode(fc *config.FileConfig) (*edgenode.Node, error) {
	metrics := make([]*metric.Metric, 0, len(fc.MemoryTags))
	for _, mtc := range fc.MemoryTags {
		dt, err := mtc.ResolvedDatatype()
		if err != nil {
			return nil, err
		}

		mt, err := memorytag.New(mtc.Name, dt, mtc.InitialValue, mtc.Writable,
			mtc.Alias, mtc.DisableAlias, mtc.RbeIgnore, mtc.PersistenceFile, mtc.ResolvedWriteValidator())
		if err != nil {
			return nil, fmt.Errorf("building memory tag %q: %w", mtc.Name, err)
		}
		metrics = append(metrics, mt.Metric)
	}

	brokers := make([]transport.BrokerInfo, 0, len(fc.Brokers))
	for _, b := range fc.Brokers {
		brokers = append(brokers, b.ToBrokerInfo())
	}

	cfg := edgenode.Config{
		GroupID:          fc.GroupID,
		EdgeID:           fc.EdgeID,
		ScanRateMs:       fc.ScanRateMs,
		ConfigSaveRateMs: fc.ConfigSaveRateMs,
		ConfigFilePath:   fc.ConfigFilePath,
	}

	return edgenode.New(cfg, brokers, metrics, sppayload.NewReferenceCodec())
}
