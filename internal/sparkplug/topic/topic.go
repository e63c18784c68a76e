// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package topic builds the Sparkplug B edge node MQTT topics (component
// C4): spBv1.0/<group>/{NBIRTH,NDEATH,NDATA,NCMD}/<edge>.
package topic

import "fmt"

const namespace = "spBv1.0"

// reservedGroupID is rejected because the Sparkplug B host application uses
// it for its own STATE/<host_application_id> topic, outside this edge
// node's group namespace.
const reservedGroupID = "STATE"

// Topics holds the fully-built MQTT topic strings for one edge node.
type Topics struct {
	GroupID string
	EdgeID  string

	NBIRTH string
	NDEATH string
	NDATA  string
	NCMD   string
}

// New builds the Topics for a given group/edge pair. It returns an error
// if groupID is the reserved "STATE" namespace.
func New(groupID, edgeID string) (*Topics, error) {
	if groupID == reservedGroupID {
		return nil, fmt.Errorf("topic: group id %q is reserved for the Sparkplug host application", reservedGroupID)
	}
	if groupID == "" || edgeID == "" {
		return nil, fmt.Errorf("topic: group id and edge id must both be non-empty")
	}

	return &Topics{
		GroupID: groupID,
		EdgeID:  edgeID,
		NBIRTH:  fmt.Sprintf("%s/%s/NBIRTH/%s", namespace, groupID, edgeID),
		NDEATH:  fmt.Sprintf("%s/%s/NDEATH/%s", namespace, groupID, edgeID),
		NDATA:   fmt.Sprintf("%s/%s/NDATA/%s", namespace, groupID, edgeID),
		NCMD:    fmt.Sprintf("%s/%s/NCMD/%s", namespace, groupID, edgeID),
	}, nil
}

// HostApplicationState returns the STATE topic for a host application id,
// which an edge node subscribes to in order to detect a host coming
// online/offline and rebirth accordingly.
func HostApplicationState(hostApplicationID string) string {
	return fmt.Sprintf("%s/%s/%s", namespace, reservedGroupID, hostApplicationID)
}
