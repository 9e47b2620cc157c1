// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package itemcf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	model := fit(t, newRandomMatrix(12, 9))
	buf := bytes.NewBuffer(nil)
	require.NoError(t, model.Marshal(buf))
	assert.Equal(t, []byte("SCFM"), buf.Bytes()[:4])
	assert.Equal(t, SnapshotVersion, binary.LittleEndian.Uint32(buf.Bytes()[4:8]))

	restored, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.True(t, model.Meta().Created.Equal(restored.Meta().Created))
	assert.Equal(t, model.Meta().Source, restored.Meta().Source)
	assert.Equal(t, model.Meta().Actors, restored.Meta().Actors)
	assert.Equal(t, model.Matrix().ActorIds(), restored.Matrix().ActorIds())
	assert.Equal(t, model.Matrix().ItemIds(), restored.Matrix().ItemIds())
	assert.Equal(t, model.Similarity(), restored.Similarity())
	for _, actorId := range model.Matrix().ActorIds() {
		expected, err := model.ScoredRecommend(actorId, 5)
		assert.NoError(t, err)
		actual, err := restored.ScoredRecommend(actorId, 5)
		assert.NoError(t, err)
		assert.Equal(t, expected, actual)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	model := fit(t, newEmptyMatrix())
	buf := bytes.NewBuffer(nil)
	require.NoError(t, model.Marshal(buf))
	restored, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Zero(t, restored.Meta().Actors)
	assert.Zero(t, restored.Meta().Items)
}

func TestSnapshot_Corrupted(t *testing.T) {
	model := fit(t, newTestMatrix())
	buf := bytes.NewBuffer(nil)
	require.NoError(t, model.Marshal(buf))
	data := buf.Bytes()

	// wrong magic
	corrupted := bytes.Clone(data)
	copy(corrupted, "PKL!")
	_, err := Unmarshal(bytes.NewReader(corrupted))
	assert.True(t, errors.Is(err, errors.NotValid))

	// unknown version
	corrupted = bytes.Clone(data)
	binary.LittleEndian.PutUint32(corrupted[4:8], 2)
	_, err = Unmarshal(bytes.NewReader(corrupted))
	assert.True(t, errors.Is(err, errors.NotSupported))

	// truncated
	_, err = Unmarshal(bytes.NewReader(data[:len(data)-8]))
	assert.Error(t, err)
	_, err = Unmarshal(bytes.NewReader(data[:2]))
	assert.Error(t, err)
}
