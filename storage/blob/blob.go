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
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bdm-project/scentcf/config"
	"github.com/juju/errors"
)

const (
	FilePrefix  = "file://"
	S3Prefix    = "s3://"
	GCSPrefix   = "gs://"
	AzurePrefix = "azblob://"
)

// Store keeps named blobs such as CSV sources and model snapshots.
type Store interface {
	// Open a blob for reading.
	Open(name string) (io.ReadCloser, error)
	// Create a blob for writing. The blob is complete once Close returns without error.
	// The done channel is closed at the same time.
	Create(name string) (io.WriteCloser, chan struct{}, error)
	// ModTime returns the time a blob was last written.
	ModTime(name string) (time.Time, error)
	List() ([]string, error)
	Remove(name string) error
}

// Open creates a store from a URI such as file://dir, s3://bucket/prefix,
// gs://bucket/prefix or azblob://container/prefix.
func Open(uri string, cfg config.BlobConfig) (Store, error) {
	if strings.HasPrefix(uri, FilePrefix) || !strings.Contains(uri, "://") {
		return NewPOSIX(strings.TrimPrefix(uri, FilePrefix)), nil
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Trace(err)
	}
	bucket, prefix := parsed.Host, strings.TrimPrefix(parsed.Path, "/")
	if bucket == "" {
		return nil, errors.NotValidf("blob uri %v without bucket", uri)
	}
	switch parsed.Scheme + "://" {
	case S3Prefix:
		return NewS3(cfg.S3, bucket, prefix)
	case GCSPrefix:
		return NewGCS(cfg.GCS, bucket, prefix)
	case AzurePrefix:
		return NewAzureBlob(cfg.Azure, bucket, prefix)
	}
	return nil, errors.NotSupportedf("blob uri %v", uri)
}

// OpenObject opens a single object addressed by a URI, e.g. gs://bucket/data.csv.
// A URI without scheme is a local path.
func OpenObject(uri string, cfg config.BlobConfig) (io.ReadCloser, error) {
	if strings.HasPrefix(uri, FilePrefix) || !strings.Contains(uri, "://") {
		return os.Open(strings.TrimPrefix(uri, FilePrefix))
	}
	i := strings.LastIndex(uri, "/")
	if i < len("x://") {
		return nil, errors.NotValidf("object uri %v", uri)
	}
	store, err := Open(uri[:i], cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return store.Open(uri[i+1:])
}

// asyncWriter streams written bytes to an upload running in the background.
type asyncWriter struct {
	*io.PipeWriter
	done chan struct{}
	err  error
}

func newAsyncWriter(upload func(r io.Reader) error) *asyncWriter {
	pr, pw := io.Pipe()
	w := &asyncWriter{PipeWriter: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		w.err = upload(pr)
		_ = pr.CloseWithError(w.err)
	}()
	return w
}

// Close flushes the pipe and waits for the upload to finish.
func (w *asyncWriter) Close() error {
	if err := w.PipeWriter.Close(); err != nil {
		return errors.Trace(err)
	}
	<-w.done
	return w.err
}
