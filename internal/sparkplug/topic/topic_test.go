// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of sparkplug-edge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package topic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClusterCockpit/sparkplug-edge/internal/sparkplug/topic"
)

func TestNewBuildsAllFourTopics(t *testing.T) {
	tp, err := topic.New("Plant1", "Edge1")
	require.NoError(t, err)
	assert.Equal(t, "spBv1.0/Plant1/NBIRTH/Edge1", tp.NBIRTH)
	assert.Equal(t, "spBv1.0/Plant1/NDEATH/Edge1", tp.NDEATH)
	assert.Equal(t, "spBv1.0/Plant1/NDATA/Edge1", tp.NDATA)
	assert.Equal(t, "spBv1.0/Plant1/NCMD/Edge1", tp.NCMD)
}

func TestNewRejectsReservedGroupID(t *testing.T) {
	_, err := topic.New("STATE", "Edge1")
	assert.Error(t, err)
}

func TestNewRejectsEmptyIDs(t *testing.T) {
	_, err := topic.New("", "Edge1")
	assert.Error(t, err)
	_, err = topic.New("Plant1", "")
	assert.Error(t, err)
}

func TestHostApplicationState(t *testing.T) {
	assert.Equal(t, "spBv1.0/STATE/scada-host", topic.HostApplicationState("scada-host"))
}
