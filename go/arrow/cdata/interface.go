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

//go:build cgo

package cdata

// #include "arrow/c/helpers.h"
import "C"

import (
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"golang.org/x/xerrors"
)

// SchemaFromPtr is a simple helper function to cast a uintptr to a *CArrowSchema
func SchemaFromPtr(ptr uintptr) *CArrowSchema { return (*CArrowSchema)(unsafe.Pointer(ptr)) }

// ArrayFromPtr is a simple helper function to cast a uintptr to a *CArrowArray
func ArrayFromPtr(ptr uintptr) *CArrowArray { return (*CArrowArray)(unsafe.Pointer(ptr)) }

// StreamFromPtr is a simple helper function to cast a uintptr to a *CArrowArrayStream
func StreamFromPtr(ptr uintptr) *CArrowArrayStream {
	return (*CArrowArrayStream)(unsafe.Pointer(ptr))
}

// ImportCArrowField takes in an ArrowSchema from the C Data interface, it
// will copy the metadata and type from the C object and then release it.
func ImportCArrowField(out *CArrowSchema) (arrow.Field, error) {
	if out != nil {
		defer C.ArrowSchemaRelease(out)
	}
	return importSchema(out)
}

// ImportCArrowSchema takes in the ArrowSchema from the C Data Interface, it
// will copy the metadata and schema from the C object and then release it.
//
// The exported schema must be a struct type, whose fields become the
// fields of the schema.
func ImportCArrowSchema(out *CArrowSchema) (*arrow.Schema, error) {
	ret, err := ImportCArrowField(out)
	if err != nil {
		return nil, err
	}

	st, ok := ret.Type.(*arrow.StructType)
	if !ok {
		return nil, structureError("schema must be a struct, got %s", ret.Type)
	}
	return arrow.NewSchema(st.Fields(), &ret.Metadata), nil
}

// ImportCArrayWithType imports an ArrowArray of the given type without a
// schema. The C struct is always consumed: on success the returned array
// keeps the foreign memory alive until its last reference is released, on
// failure the foreign release callback has already been called.
func ImportCArrayWithType(arr *CArrowArray, dt arrow.DataType) (arrow.Array, error) {
	data, err := importCArrayAsType(arr, dt)
	if err != nil {
		return nil, err
	}
	defer data.Release()
	return array.MakeFromData(data), nil
}

// ImportCArray imports an array together with the schema describing it.
// Both C structs are consumed whatever the outcome.
func ImportCArray(arr *CArrowArray, schema *CArrowSchema) (arrow.Field, arrow.Array, error) {
	field, err := ImportCArrowField(schema)
	if err != nil {
		releaseArr(arr)
		return field, nil, err
	}

	ret, err := ImportCArrayWithType(arr, field.Type)
	return field, ret, err
}

// ImportCRecordBatchWithSchema imports a struct array as a record batch
// with the given schema.
func ImportCRecordBatchWithSchema(arr *CArrowArray, sc *arrow.Schema) (arrow.Record, error) {
	data, err := importCArrayAsType(arr, arrow.StructOf(sc.Fields()...))
	if err != nil {
		return nil, err
	}
	defer data.Release()

	st := array.NewStructData(data)
	defer st.Release()

	if st.NullN() != 0 {
		return nil, structureError("record batch struct array has %d nulls", st.NullN())
	}

	// now that we have our fields, we can split them out into the slice of arrays
	// and construct a record batch from them to return.
	cols := make([]arrow.Array, st.NumField())
	for i := 0; i < st.NumField(); i++ {
		cols[i] = st.Field(i)
	}

	return array.NewRecord(sc, cols, int64(st.Len())), nil
}

// ImportCRecordBatch imports a record batch from an ArrowArray and the
// struct ArrowSchema describing it. Both C structs are consumed.
func ImportCRecordBatch(arr *CArrowArray, sc *CArrowSchema) (arrow.Record, error) {
	field, err := ImportCArrowField(sc)
	if err != nil {
		releaseArr(arr)
		return nil, err
	}

	st, ok := field.Type.(*arrow.StructType)
	if !ok {
		releaseArr(arr)
		return nil, structureError("record batch schema must be a struct, got %s", field.Type)
	}

	return ImportCRecordBatchWithSchema(arr, arrow.NewSchema(st.Fields(), &field.Metadata))
}

// ImportCArrayStream moves the stream into a StreamReader. If schema is
// nil it is read from the stream right away. The stream is consumed
// even when an error is returned.
func ImportCArrayStream(stream *CArrowArrayStream, schema *arrow.Schema) (*StreamReader, error) {
	return newStreamReader(stream, schema)
}

// ExportArrowSchema populates the passed in CArrowSchema with the schema
// passed in so that it can be passed to some consumer of the C Data
// Interface. The schema is exported as a non-nullable struct.
//
// The release function on the CArrowSchema must be called or the memory
// will never be freed.
func ExportArrowSchema(schema *arrow.Schema, out *CArrowSchema) error {
	md := schema.Metadata()
	return exportField(arrow.Field{Type: arrow.StructOf(schema.Fields()...), Metadata: md}, out)
}

// ExportArrowField populates out with the given field.
func ExportArrowField(field arrow.Field, out *CArrowSchema) error {
	return exportField(field, out)
}

// ExportArrowRecordBatch populates the passed in CArrowArray (and optionally
// the schema) with the passed in record batch, exported as a struct array.
//
// The release function on the CArrowArray must be called or the memory
// for the record batch will never be released by Go.
func ExportArrowRecordBatch(rb arrow.Record, out *CArrowArray, outSchema *CArrowSchema) error {
	if outSchema != nil {
		if err := ExportArrowSchema(rb.Schema(), outSchema); err != nil {
			return err
		}
	}

	arr := array.RecordToStructArray(rb)
	defer arr.Release()

	if err := exportArrayData(arr.Data(), out); err != nil {
		if outSchema != nil {
			releaseSchema(outSchema)
		}
		return err
	}
	return nil
}

// ExportArrowArray populates the CArrowArray that is passed in with the
// pointers to the memory being used by the arrow.Array passed in, in order
// to share with zero-copy across the C Data Interface. The array's data is
// retained until the release callback of out is called.
//
// If outSchema is not nil it receives an unnamed, nullable field of the
// array's type.
func ExportArrowArray(arr arrow.Array, out *CArrowArray, outSchema *CArrowSchema) error {
	if outSchema != nil {
		if err := exportField(arrow.Field{Type: arr.DataType(), Nullable: true}, outSchema); err != nil {
			return err
		}
	}

	if err := exportArrayData(arr.Data(), out); err != nil {
		if outSchema != nil {
			releaseSchema(outSchema)
		}
		return err
	}
	return nil
}

// ExportRecordReader populates out with callbacks reading from reader.
// The reader is retained until the stream is released.
func ExportRecordReader(reader array.RecordReader, out *CArrowArrayStream) error {
	if err := exportStream(reader, out); err != nil {
		return xerrors.Errorf("exporting record reader: %w", err)
	}
	return nil
}

// ReleaseCArrowArray calls ArrowArrayRelease on the passed in cdata array
func ReleaseCArrowArray(arr *CArrowArray) { releaseArr(arr) }

// ReleaseCArrowSchema calls ArrowSchemaRelease on the passed in cdata schema
func ReleaseCArrowSchema(schema *CArrowSchema) { releaseSchema(schema) }

// ReleaseCArrowArrayStream calls ArrowArrayStreamRelease on the passed in
// cdata stream
func ReleaseCArrowArrayStream(stream *CArrowArrayStream) {
	if stream != nil {
		C.ArrowArrayStreamRelease(stream)
	}
}

// ArrayIsReleased reports whether arr is in the released state.
func ArrayIsReleased(arr *CArrowArray) bool { return C.ArrowArrayIsReleased(arr) == 1 }

// SchemaIsReleased reports whether schema is in the released state.
func SchemaIsReleased(schema *CArrowSchema) bool { return C.ArrowSchemaIsReleased(schema) == 1 }

// MoveCArrowArray relocates src into dst and leaves src released. The
// release callback is not called: ownership of everything src referenced
// now belongs to dst.
//
// dst must be a different struct which is not live, moving onto a live
// struct would leak it.
func MoveCArrowArray(src, dst *CArrowArray) {
	if src == dst {
		panic("cdata: cannot move an ArrowArray onto itself")
	}
	if C.ArrowArrayIsReleased(dst) != 1 {
		panic("cdata: moving onto a live ArrowArray")
	}
	C.ArrowArrayMove(src, dst)
}

// MoveCArrowSchema is MoveCArrowArray for schemas.
func MoveCArrowSchema(src, dst *CArrowSchema) {
	if src == dst {
		panic("cdata: cannot move an ArrowSchema onto itself")
	}
	if C.ArrowSchemaIsReleased(dst) != 1 {
		panic("cdata: moving onto a live ArrowSchema")
	}
	C.ArrowSchemaMove(src, dst)
}

func releaseArr(arr *CArrowArray) {
	if arr != nil {
		C.ArrowArrayRelease(arr)
	}
}

func releaseSchema(schema *CArrowSchema) {
	if schema != nil {
		C.ArrowSchemaRelease(schema)
	}
}
