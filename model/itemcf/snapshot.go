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
	"io"

	"github.com/bdm-project/scentcf/base/encoding"
	"github.com/bdm-project/scentcf/dataset"
	"github.com/juju/errors"
)

const (
	snapshotMagic   = "SCFM"
	SnapshotVersion = uint32(1)
)

// Marshal writes the model as a snapshot: magic, version, JSON header, actor ids,
// item ids, the rating matrix and the similarity matrix. Numbers are little-endian.
func (m *Model) Marshal(w io.Writer) error {
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, SnapshotVersion); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteJSON(w, m.meta); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteStrings(w, m.matrix.ActorIds()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteStrings(w, m.matrix.ItemIds()); err != nil {
		return errors.Trace(err)
	}
	rows := make([][]float64, m.matrix.CountActors())
	for i := range rows {
		rows[i] = m.matrix.Row(i)
	}
	if err := encoding.WriteMatrix(w, rows); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(encoding.WriteMatrix(w, m.similarity.values))
}

// Unmarshal reads a model from a snapshot written by Marshal.
func Unmarshal(r io.Reader) (*Model, error) {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errors.Trace(err)
	}
	if !bytes.Equal(magic, []byte(snapshotMagic)) {
		return nil, errors.NotValidf("snapshot magic %q", magic)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, errors.Trace(err)
	}
	if version != SnapshotVersion {
		return nil, errors.NotSupportedf("snapshot version %d", version)
	}
	var meta Meta
	if err := encoding.ReadJSON(r, &meta); err != nil {
		return nil, errors.Trace(err)
	}
	actorIds, err := encoding.ReadStrings(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	itemIds, err := encoding.ReadStrings(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(actorIds) != meta.Actors || len(itemIds) != meta.Items {
		return nil, errors.NotValidf("snapshot with %d actors and %d items for header %dx%d",
			len(actorIds), len(itemIds), meta.Actors, meta.Items)
	}
	values := allocate(len(actorIds), len(itemIds))
	if err = encoding.ReadMatrix(r, values); err != nil {
		return nil, errors.Trace(err)
	}
	matrix, err := dataset.NewMatrix(actorIds, itemIds, values)
	if err != nil {
		return nil, errors.Trace(err)
	}
	similarities := allocate(len(itemIds), len(itemIds))
	if err = encoding.ReadMatrix(r, similarities); err != nil {
		return nil, errors.Trace(err)
	}
	similarity, err := NewSimilarity(similarities)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewModel(meta, matrix, similarity)
}

func allocate(rows, columns int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, columns)
	}
	return m
}
