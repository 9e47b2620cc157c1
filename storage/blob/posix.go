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

package blob

import (
	"io"
	"os"
	"path"
	"time"

	"github.com/bdm-project/scentcf/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

type POSIX struct {
	dir string
}

func NewPOSIX(dir string) *POSIX {
	return &POSIX{dir: dir}
}

// Open a file for reading. It returns an io.Reader that can be used to read the file's content.
func (p *POSIX) Open(name string) (io.ReadCloser, error) {
	fullPath := path.Join(p.dir, name)
	return os.Open(fullPath)
}

// Create a new file for writing. Data goes to a temporary file which is renamed once the
// writer is closed, so readers never observe a partial file.
func (p *POSIX) Create(name string) (io.WriteCloser, chan struct{}, error) {
	fullPath := path.Join(p.dir, name)
	if err := os.MkdirAll(path.Dir(fullPath), os.ModePerm); err != nil {
		return nil, nil, errors.Trace(err)
	}
	file, err := os.CreateTemp(path.Dir(fullPath), "upload-*")
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	w := newAsyncWriter(func(r io.Reader) error {
		_, err := io.Copy(file, r)
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			log.Logger().Error("failed to write to file", zap.String("file", fullPath), zap.Error(err))
			_ = os.Remove(file.Name())
			return errors.Trace(err)
		}
		return errors.Trace(os.Rename(file.Name(), fullPath))
	})
	return w, w.done, nil
}

func (p *POSIX) ModTime(name string) (time.Time, error) {
	info, err := os.Stat(path.Join(p.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, errors.NotFoundf("blob %v", name)
		}
		return time.Time{}, errors.Trace(err)
	}
	return info.ModTime(), nil
}

func (p *POSIX) List() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Trace(err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (p *POSIX) Remove(name string) error {
	return errors.Trace(os.Remove(path.Join(p.dir, name)))
}
