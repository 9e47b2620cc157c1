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

package master

import (
	"io"
	"time"

	"github.com/bdm-project/scentcf/model/itemcf"
	"github.com/bdm-project/scentcf/storage/blob"
	"github.com/juju/errors"
)

// SaveSnapshot writes a model to a blob store. A failed write never replaces an
// existing snapshot.
func SaveSnapshot(store blob.Store, name string, model *itemcf.Model) error {
	w, _, err := store.Create(name)
	if err != nil {
		return errors.Trace(err)
	}
	if err = model.Marshal(w); err != nil {
		if aborter, ok := w.(interface{ CloseWithError(error) error }); ok {
			_ = aborter.CloseWithError(err)
		} else {
			_ = w.Close()
		}
		return errors.Trace(err)
	}
	return errors.Trace(w.Close())
}

// LoadSnapshot reads a model from a blob store. It also returns the time the snapshot
// was written. A missing snapshot is reported as errors.NotFound.
func LoadSnapshot(store blob.Store, name string) (*itemcf.Model, time.Time, error) {
	modTime, err := store.ModTime(name)
	if err != nil {
		return nil, time.Time{}, errors.Trace(err)
	}
	r, err := store.Open(name)
	if err != nil {
		return nil, time.Time{}, errors.Trace(err)
	}
	defer func(r io.ReadCloser) {
		_ = r.Close()
	}(r)
	model, err := itemcf.Unmarshal(r)
	if err != nil {
		return nil, time.Time{}, errors.Annotatef(err, "snapshot %s", name)
	}
	return model, modTime, nil
}
