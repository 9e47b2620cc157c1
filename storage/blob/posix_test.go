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
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestPOSIX(t *testing.T) {
	// create client
	client := NewPOSIX(path.Join(t.TempDir(), "blob"))

	// list empty directory
	names, err := client.List()
	assert.NoError(t, err)
	assert.Empty(t, names)

	// write a temp file
	w, done, err := client.Create("test")
	assert.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	<-done

	// read the file
	r, err := client.Open("test")
	assert.NoError(t, err)
	content, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
	assert.NoError(t, r.Close())

	// modification time
	modTime, err := client.ModTime("test")
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now(), modTime, time.Minute)
	_, err = client.ModTime("missing")
	assert.True(t, errors.Is(err, errors.NotFound))

	// list and remove
	names, err = client.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{"test"}, names)
	assert.NoError(t, client.Remove("test"))
	names, err = client.List()
	assert.NoError(t, err)
	assert.Empty(t, names)
}

func TestPOSIX_Overwrite(t *testing.T) {
	client := NewPOSIX(t.TempDir())
	for _, content := range []string{"first", "second"} {
		w, _, err := client.Create("model.bin")
		assert.NoError(t, err)
		_, err = w.Write([]byte(content))
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
	}
	r, err := client.Open("model.bin")
	assert.NoError(t, err)
	data, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.NoError(t, r.Close())
	// no temporary files are left behind
	names, err := client.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{"model.bin"}, names)
}

func TestAsyncWriter_Error(t *testing.T) {
	w := newAsyncWriter(func(r io.Reader) error {
		return errors.New("upload failed")
	})
	<-w.done
	_, err := w.Write([]byte("data"))
	assert.Error(t, err)
	assert.ErrorContains(t, w.Close(), "upload failed")
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open("file://"+dir, testBlobConfig())
	assert.NoError(t, err)
	assert.IsType(t, &POSIX{}, store)
	store, err = Open(dir, testBlobConfig())
	assert.NoError(t, err)
	assert.IsType(t, &POSIX{}, store)

	store, err = Open("s3://bucket/prefix", testBlobConfig())
	assert.NoError(t, err)
	if assert.IsType(t, &S3{}, store) {
		assert.Equal(t, "bucket", store.(*S3).bucket)
		assert.Equal(t, "prefix", store.(*S3).prefix)
	}

	_, err = Open("ftp://bucket/prefix", testBlobConfig())
	assert.True(t, errors.Is(err, errors.NotSupported))
	_, err = Open("s3:///prefix", testBlobConfig())
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestOpenObject(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(path.Join(dir, "data.csv"), []byte("a,b"), 0644))
	for _, uri := range []string{path.Join(dir, "data.csv"), "file://" + path.Join(dir, "data.csv")} {
		r, err := OpenObject(uri, testBlobConfig())
		assert.NoError(t, err)
		data, err := io.ReadAll(r)
		assert.NoError(t, err)
		assert.Equal(t, "a,b", string(data))
		assert.NoError(t, r.Close())
	}
	_, err := OpenObject("s3://", testBlobConfig())
	assert.Error(t, err)
}
