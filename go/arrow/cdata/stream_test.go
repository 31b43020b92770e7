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

//go:build cgo && test

package cdata

import (
	"errors"
	"io"
	"strings"
	"syscall"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSourceFailed = errors.New("source failed")

// failingReader stops with an error after a number of batches.
type failingReader struct {
	array.RecordReader
	after, n int
}

func (r *failingReader) Next() bool {
	if r.n >= r.after {
		return false
	}
	r.n++
	return r.RecordReader.Next()
}

func (r *failingReader) Err() error {
	if r.n >= r.after {
		return errSourceFailed
	}
	return nil
}

func makeRecords(t *testing.T, mem memory.Allocator) (*arrow.Schema, []arrow.Record) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "b", Type: arrow.ListOf(arrow.BinaryTypes.String)},
	}, nil)

	var recs []arrow.Record
	for _, data := range []string{
		`[{"a": 1, "b": ["x"]}, {"a": null, "b": []}]`,
		`[{"a": 3, "b": ["y", "z"]}]`,
		`[]`,
	} {
		rec, _, err := array.RecordFromJSON(mem, schema, strings.NewReader(data))
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	return schema, recs
}

func releaseAll(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}

func TestStreamRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	cbase := cAllocated()
	defer func() { assert.Equal(t, cbase, cAllocated()) }()

	schema, recs := makeRecords(t, mem)
	defer releaseAll(recs)

	rdr, err := array.NewRecordReader(schema, recs)
	require.NoError(t, err)

	var stream CArrowArrayStream
	require.NoError(t, ExportRecordReader(rdr, &stream))
	// the stream holds its own reference
	rdr.Release()

	imported, err := ImportCArrayStream(&stream, nil)
	require.NoError(t, err)
	assert.True(t, streamIsReleased(&stream))
	assert.True(t, schema.Equal(imported.Schema()))

	var kept []arrow.Record
	i := 0
	for imported.Next() {
		rec := imported.Record()
		assert.Truef(t, array.RecordEqual(recs[i], rec), "batch %d", i)
		rec.Retain()
		kept = append(kept, rec)
		i++
	}
	assert.NoError(t, imported.Err())
	assert.Equal(t, len(recs), i)
	imported.Release()

	// batches outlive the reader
	for j, rec := range kept {
		assert.True(t, array.RecordEqual(recs[j], rec))
	}
	releaseAll(kept)
}

func TestStreamRead(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema, recs := makeRecords(t, mem)
	defer releaseAll(recs)

	rdr, err := array.NewRecordReader(schema, recs)
	require.NoError(t, err)
	defer rdr.Release()

	var stream CArrowArrayStream
	require.NoError(t, ExportRecordReader(rdr, &stream))

	imported, err := ImportCArrayStream(&stream, schema)
	require.NoError(t, err)
	defer imported.Release()

	for i := range recs {
		rec, err := imported.Read()
		require.NoError(t, err)
		assert.True(t, array.RecordEqual(recs[i], rec))
	}
	_, err = imported.Read()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, imported.Err())
}

func TestStreamProducerError(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema, recs := makeRecords(t, mem)
	defer releaseAll(recs)

	inner, err := array.NewRecordReader(schema, recs)
	require.NoError(t, err)
	defer inner.Release()

	var stream CArrowArrayStream
	require.NoError(t, ExportRecordReader(&failingReader{RecordReader: inner, after: 1}, &stream))

	imported, err := ImportCArrayStream(&stream, nil)
	require.NoError(t, err)
	defer imported.Release()

	assert.True(t, imported.Next())
	assert.False(t, imported.Next())

	err = imported.Err()
	assert.ErrorIs(t, err, syscall.EIO)
	assert.Contains(t, err.Error(), errSourceFailed.Error())
}

func TestStreamCallbacks(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	cbase := cAllocated()
	defer func() { assert.Equal(t, cbase, cAllocated()) }()

	schema, recs := makeRecords(t, mem)
	defer releaseAll(recs)

	rdr, err := array.NewRecordReader(schema, recs)
	require.NoError(t, err)
	defer rdr.Release()

	var stream CArrowArrayStream
	require.NoError(t, ExportRecordReader(rdr, &stream))
	defer ReleaseCArrowArrayStream(&stream)

	var sc CArrowSchema
	require.Equal(t, 0, streamGetSchemaViaC(&stream, &sc))
	assert.Equal(t, "+s", schemaFormat(&sc))
	assert.Len(t, schemaChildren(&sc), 2)
	ReleaseCArrowSchema(&sc)

	for range recs {
		var arr CArrowArray
		require.Equal(t, 0, streamGetNextViaC(&stream, &arr))
		require.False(t, ArrayIsReleased(&arr))
		assert.Len(t, arrayChildren(&arr), 2)
		ReleaseCArrowArray(&arr)
	}

	// end of stream is a released array and no error
	var arr CArrowArray
	require.Equal(t, 0, streamGetNextViaC(&stream, &arr))
	assert.True(t, ArrayIsReleased(&arr))
	assert.Equal(t, "", streamLastErrorViaC(&stream))
}

func TestImportReleasedStream(t *testing.T) {
	var stream CArrowArrayStream
	_, err := ImportCArrayStream(&stream, nil)
	assert.ErrorIs(t, err, ErrStructure)
}
