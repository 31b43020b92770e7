// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cdata

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/xerrors"
)

// Metadata is encoded in the C struct as
//
//	[int32] -> number of metadata pairs
//	for 0..n
//		[int32] -> number of bytes in key
//		[n bytes] -> key value
//		[int32] -> number of bytes in value
//		[n bytes] -> value
//
// with all integers in native byte order. An empty set of pairs is
// exported as a NULL pointer.

func encodeCMetadata(keys, values []string) []byte {
	if len(keys) != len(values) {
		panic("unequal metadata key/values length")
	}
	if len(keys) == 0 {
		return nil
	}

	var b bytes.Buffer
	totalSize := arrow.Int32SizeBytes
	for i := range keys {
		totalSize += 2*arrow.Int32SizeBytes + len(keys[i]) + len(values[i])
	}
	b.Grow(totalSize)

	var scratch [arrow.Int32SizeBytes]byte
	writeInt32 := func(v int) {
		binary.NativeEndian.PutUint32(scratch[:], uint32(int32(v)))
		b.Write(scratch[:])
	}

	writeInt32(len(keys))
	for i := range keys {
		writeInt32(len(keys[i]))
		b.WriteString(keys[i])
		writeInt32(len(values[i]))
		b.WriteString(values[i])
	}
	return b.Bytes()
}

// decodeCMetadata copies the metadata pointed to by md into Go memory.
func decodeCMetadata(md unsafe.Pointer) (arrow.Metadata, error) {
	if md == nil {
		return arrow.Metadata{}, nil
	}

	pos := 0
	readInt32 := func() int32 {
		v := *(*int32)(unsafe.Add(md, pos))
		pos += arrow.Int32SizeBytes
		return v
	}

	readStr := func() (string, error) {
		l := readInt32()
		if l < 0 {
			return "", xerrors.Errorf("%w: negative metadata string length %d", ErrStructure, l)
		}
		s := string(unsafe.Slice((*byte)(unsafe.Add(md, pos)), l))
		pos += int(l)
		return s, nil
	}

	npairs := readInt32()
	switch {
	case npairs < 0:
		return arrow.Metadata{}, xerrors.Errorf("%w: negative metadata pair count %d", ErrStructure, npairs)
	case npairs == 0:
		return arrow.Metadata{}, nil
	}

	keys := make([]string, npairs)
	vals := make([]string, npairs)

	var err error
	for i := range keys {
		if keys[i], err = readStr(); err != nil {
			return arrow.Metadata{}, err
		}
		if vals[i], err = readStr(); err != nil {
			return arrow.Metadata{}, err
		}
	}

	return arrow.NewMetadata(keys, vals), nil
}
