// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package edgenode

import (
	"context"
	"sync"

	"github.com/ClusterCockpit/sparkplug-edge/internal/transport"
)

// fakeTransport is a transport.Client test double: it never touches a real
// broker, records every publish, and lets a test invoke a subscribed
// handler directly to simulate an inbound NCMD.
type fakeTransport struct {
	mu          sync.Mutex
	connected   bool
	will        *transport.Will
	published   []transport.Message
	subscribers map[string]func(topic string, payload []byte)
	nextID      uint16
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subscribers: make(map[string]func(string, []byte))}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) SetWill(w transport.Will) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.will = &w
}

func (f *fakeTransport) Publish(ctx context.Context, m transport.Message) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.published = append(f.published, m)
	return f.nextID, nil
}

func (f *fakeTransport) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[topic] = handler
	return nil
}

// deliver simulates an inbound message arriving on topic, as a real broker
// would hand to the Subscribe callback.
func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.subscribers[topic]
	f.mu.Unlock()
	if handler != nil {
		handler(topic, payload)
	}
}

func (f *fakeTransport) lastPublished(topic string) (transport.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].Topic == topic {
			return f.published[i], true
		}
	}
	return transport.Message{}, false
}

func (f *fakeTransport) countPublished(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.published {
		if m.Topic == topic {
			n++
		}
	}
	return n
}
