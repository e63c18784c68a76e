// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package edgenode

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-co-op/gocron/v2"

	"github.com/ClusterCockpit/sparkplug-edge/internal/transport"
	"github.com/ClusterCockpit/sparkplug-edge/pkg/log"
)

// StartClient connects to the first reachable configured broker (primary
// first), registers the NDEATH will, subscribes to NCMD, publishes NBIRTH,
// and starts the config-save scheduler. Reconnect attempts across brokers
// use an exponential backoff so a flapping broker doesn't spin this loop.
func (n *Node) StartClient(ctx context.Context) error {
	var lastErr error
	for _, b := range n.brokers {
		client := newTransportClient(b)

		// bdSeq advances once per new MQTT session (new Will), never for
		// the first-ever session of a fresh node and never for an
		// in-session rebirth.
		n.mu.Lock()
		if n.connectedOnce {
			n.bdSeq.Next()
		}
		n.connectedOnce = true
		n.mu.Unlock()

		deathPayload := n.buildNDeathPayload()
		deathBytes, err := n.codec.Encode(deathPayload)
		if err != nil {
			return fmt.Errorf("edgenode: cannot encode NDEATH will: %w", err)
		}
		client.SetWill(transport.Will{Topic: n.topics.NDEATH, Payload: deathBytes, Qos: 0, Retain: false})

		connErr := backoff.Retry(func() error {
			return client.Connect(ctx)
		}, brokerBackoff(ctx))
		if connErr != nil {
			log.Warnf("edgenode: could not connect to broker %s:%d: %v", b.Host, b.Port, connErr)
			lastErr = connErr
			continue
		}

		n.mu.Lock()
		n.transport = client
		n.connected = true
		n.mu.Unlock()

		if err := n.transport.Subscribe(n.topics.NCMD, 1, n.onNCmdMessage); err != nil {
			n.transport.Disconnect()
			n.mu.Lock()
			n.connected = false
			n.mu.Unlock()
			return fmt.Errorf("edgenode: cannot subscribe to %s: %w", n.topics.NCMD, err)
		}

		if err := n.publishNBirth(ctx, false); err != nil {
			return fmt.Errorf("edgenode: cannot publish NBIRTH: %w", err)
		}

		if err := n.startScheduler(); err != nil {
			return err
		}

		return nil
	}
	return fmt.Errorf("edgenode: exhausted all configured brokers: %w", lastErr)
}

// brokerBackoff bounds reconnect attempts to the lifetime of ctx, with
// exponential backoff between tries.
func brokerBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (n *Node) startScheduler() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("edgenode: cannot create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(time.Duration(n.cfg.ConfigSaveRateMs)*time.Millisecond),
		gocron.NewTask(func() {
			if err := n.SaveConfig(); err != nil {
				log.Warnf("edgenode: config-save tick failed: %v", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("edgenode: cannot schedule config-save job: %w", err)
	}
	n.mu.Lock()
	n.scheduler = s
	n.mu.Unlock()
	s.Start()
	return nil
}

// StopClient disconnects from the broker and stops the config-save
// scheduler. It does not attempt to publish NDEATH: the broker's own Will
// delivery handles that once the session drops.
func (n *Node) StopClient() {
	n.mu.Lock()
	client := n.transport
	scheduler := n.scheduler
	n.connected = false
	n.mu.Unlock()

	if scheduler != nil {
		_ = scheduler.Shutdown()
	}
	if client != nil {
		client.Disconnect()
	}
}

// LoopForever runs the cooperative scan/RBE loop until ctx is cancelled or
// the MQTT session drops. It never itself decides to reconnect;
// StartClient/StopClient bracket each session attempt from the caller
// (cmd/edge-node's main, which opens one session and shuts down once this
// returns). The config-save tick is driven solely by the
// gocron job started in startScheduler, not from this loop, so the two
// don't race each other over the same rate.
func (n *Node) LoopForever(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !n.IsConnected() {
				return nil
			}
			if n.ReadDue() {
				if err := n.Read(ctx, true); err != nil {
					log.Warnf("edgenode: scan failed: %v", err)
				}
			}
		}
	}
}
