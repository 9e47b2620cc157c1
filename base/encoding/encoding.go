// Copyright 2022 gorse Project Authors
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

package encoding

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/juju/errors"
)

// maxLength bounds length prefixes read from a stream so that a corrupted stream
// cannot trigger a huge allocation.
const maxLength = 1 << 30

// maxPrealloc bounds the capacity allocated up front for a length prefix. Larger slices
// grow as elements are read.
const maxPrealloc = 1 << 10

// WriteMatrix writes matrix to byte stream.
func WriteMatrix(w io.Writer, m [][]float64) error {
	for i := range m {
		err := binary.Write(w, binary.LittleEndian, m[i])
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReadMatrix reads matrix from byte stream. The shape of m must be allocated by the caller.
func ReadMatrix(r io.Reader, m [][]float64) error {
	for i := range m {
		err := binary.Read(r, binary.LittleEndian, m[i])
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// WriteString writes string to byte stream.
func WriteString(w io.Writer, s string) error {
	return WriteBytes(w, []byte(s))
}

// ReadString reads string from byte stream.
func ReadString(r io.Reader) (string, error) {
	data, err := ReadBytes(r)
	return string(data), err
}

// WriteStrings writes a slice of strings to byte stream.
func WriteStrings(w io.Writer, a []string) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(a))); err != nil {
		return errors.Trace(err)
	}
	for _, s := range a {
		if err := WriteString(w, s); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReadStrings reads a slice of strings from byte stream.
func ReadStrings(r io.Reader) ([]string, error) {
	var length int32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, errors.Trace(err)
	}
	if length < 0 || length > maxLength {
		return nil, errors.NotValidf("slice length %d", length)
	}
	a := make([]string, 0, min(int(length), maxPrealloc))
	for i := int32(0); i < length; i++ {
		s, err := ReadString(r)
		if err != nil {
			return nil, errors.Trace(err)
		}
		a = append(a, s)
	}
	return a, nil
}

// WriteBytes writes bytes to byte stream.
func WriteBytes(w io.Writer, s []byte) error {
	err := binary.Write(w, binary.LittleEndian, int32(len(s)))
	if err != nil {
		return errors.Trace(err)
	}
	n, err := w.Write(s)
	if err != nil {
		return errors.Trace(err)
	} else if n != len(s) {
		return errors.New("fail to write string")
	}
	return nil
}

// ReadBytes reads bytes from byte stream.
func ReadBytes(r io.Reader) ([]byte, error) {
	var length int32
	err := binary.Read(r, binary.LittleEndian, &length)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if length < 0 || length > maxLength {
		return nil, errors.NotValidf("byte length %d", length)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(data) != int(length) {
		return nil, errors.Trace(io.ErrUnexpectedEOF)
	}
	return data, nil
}

// WriteJSON writes object as length-prefixed JSON to byte stream.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Trace(err)
	}
	return WriteBytes(w, data)
}

// ReadJSON reads a length-prefixed JSON object from byte stream.
func ReadJSON(r io.Reader, v any) error {
	data, err := ReadBytes(r)
	if err != nil {
		return err
	}
	return errors.Trace(json.Unmarshal(data, v))
}
