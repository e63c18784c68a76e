// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport fronts the external MQTT collaborator (spec.md §6)
// behind a Client interface. The bundled implementation wraps
// eclipse/paho.mqtt.golang; the edge node runtime depends only on Client,
// Will, and Message.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ClusterCockpit/sparkplug-edge/pkg/log"
)

// Will is the MQTT last-will-and-testament a Client registers at connect
// time, used to publish NDEATH without the node's own cooperation.
type Will struct {
	Topic   string
	Payload []byte
	Qos     byte
	Retain  bool
}

// Message is a single MQTT publish: either outbound (via Publish) or
// inbound (delivered to a Subscribe handler).
type Message struct {
	Topic   string
	Payload []byte
	Qos     byte
	Retain  bool
}

// Client is the seam over the MQTT transport collaborator.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	SetWill(w Will)
	Publish(ctx context.Context, m Message) (id uint16, err error)
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// BrokerInfo describes one candidate MQTT broker an edge node may connect
// to; Primary selects which BrokerInfo start_client() tries first.
type BrokerInfo struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	UseTLS   bool
	Primary  bool
}

// pahoClient is the bundled Client implementation, backed by
// eclipse/paho.mqtt.golang, the MQTT client library used elsewhere in this
// example corpus for Sparkplug-style tag publishing.
type pahoClient struct {
	broker BrokerInfo
	client pahomqtt.Client
	will   *Will
}

// NewPahoClient constructs a Client for the given broker. If broker.ClientID
// is empty, a random client ID is generated so two edge nodes never collide
// on the same broker.
func NewPahoClient(broker BrokerInfo) Client {
	if broker.ClientID == "" {
		broker.ClientID = fmt.Sprintf("sparkplug-edge-%s", uuid.NewString())
	}
	return &pahoClient{broker: broker}
}

func (c *pahoClient) SetWill(w Will) {
	c.will = &w
}

func (c *pahoClient) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if c.broker.UseTLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, c.broker.Host, c.broker.Port))
	opts.SetClientID(c.broker.ClientID)

	if c.broker.Username != "" {
		opts.SetUsername(c.broker.Username)
		opts.SetPassword(c.broker.Password)
	}

	if c.will != nil {
		opts.SetWill(c.will.Topic, string(c.will.Payload), c.will.Qos, c.will.Retain)
	}

	// Auto-reconnect is left to the runtime's backoff policy rather than
	// paho's own, so NBIRTH/rebirth logic stays in edgenode's control.
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetConnectionLostHandler(func(pahomqtt.Client, error) {
		log.Warnf("transport: MQTT connection to %s:%d lost", c.broker.Host, c.broker.Port)
	})

	client := pahomqtt.NewClient(opts)

	deadline, hasDeadline := ctx.Deadline()
	waitFor := 10 * time.Second
	if hasDeadline {
		waitFor = time.Until(deadline)
	}

	token := client.Connect()
	if !token.WaitTimeout(waitFor) {
		return fmt.Errorf("transport: connect to %s:%d timed out", c.broker.Host, c.broker.Port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: connect to %s:%d failed: %w", c.broker.Host, c.broker.Port, err)
	}

	c.client = client
	return nil
}

func (c *pahoClient) Disconnect() {
	if c.client != nil {
		c.client.Disconnect(250)
	}
}

func (c *pahoClient) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *pahoClient) Publish(ctx context.Context, m Message) (uint16, error) {
	if c.client == nil {
		return 0, fmt.Errorf("transport: publish on a disconnected client")
	}
	token := c.client.Publish(m.Topic, m.Qos, m.Retain, m.Payload)

	deadline, hasDeadline := ctx.Deadline()
	waitFor := 5 * time.Second
	if hasDeadline {
		waitFor = time.Until(deadline)
	}
	if !token.WaitTimeout(waitFor) {
		return 0, fmt.Errorf("transport: publish to %s timed out", m.Topic)
	}
	if err := token.Error(); err != nil {
		return 0, fmt.Errorf("transport: publish to %s failed: %w", m.Topic, err)
	}
	// The packet id is not read from the token; a placeholder id of 0 is
	// reported for every publish.
	return 0, nil
}

func (c *pahoClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	if c.client == nil {
		return fmt.Errorf("transport: subscribe on a disconnected client")
	}
	token := c.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("transport: subscribe to %s timed out", topic)
	}
	return token.Error()
}
