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

import (
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/nealrichardson/arrow/go/arrow/internal/debug"
)

// #include <stdlib.h>
// #include "arrow/c/helpers.h"
//
// typedef const char cchar_t;
import "C"

// Release callbacks are called by whoever ends up owning an exported
// struct, possibly after it was moved. They only ever touch memory
// reachable from the struct itself, and they cope with structs whose
// export failed part way through.

//export releaseExportedSchema
func releaseExportedSchema(schema *CArrowSchema) {
	if C.ArrowSchemaIsReleased(schema) == 1 {
		return
	}
	defer C.ArrowSchemaMarkReleased(schema)

	cfree(unsafe.Pointer(schema.name))
	cfree(unsafe.Pointer(schema.format))
	cfree(unsafe.Pointer(schema.metadata))

	if schema.dictionary != nil {
		C.ArrowSchemaRelease(schema.dictionary)
		cfree(unsafe.Pointer(schema.dictionary))
	}

	if schema.children != nil {
		children := unsafe.Slice(schema.children, schema.n_children)
		for _, c := range children {
			C.ArrowSchemaRelease(c)
		}
		// children were allocated as one block
		cfree(unsafe.Pointer(children[0]))
		cfree(unsafe.Pointer(schema.children))
	}
}

//export releaseExportedArray
func releaseExportedArray(arr *CArrowArray) {
	if C.ArrowArrayIsReleased(arr) == 1 {
		return
	}
	defer C.ArrowArrayMarkReleased(arr)

	if arr.buffers != nil && arr.private_data != nil {
		data := getHandle(arr.private_data).Value().(arrow.ArrayData)
		if hasVariadicSizes(data.DataType()) {
			buffers := unsafe.Slice(arr.buffers, arr.n_buffers)
			if sizes := buffers[len(buffers)-1]; sizes != zeroRegion {
				cfree(sizes)
			}
		}
	}
	cfree(unsafe.Pointer(arr.buffers))

	if arr.dictionary != nil {
		C.ArrowArrayRelease(arr.dictionary)
		cfree(unsafe.Pointer(arr.dictionary))
	}

	if arr.children != nil {
		children := unsafe.Slice(arr.children, arr.n_children)
		for _, c := range children {
			C.ArrowArrayRelease(c)
		}
		cfree(unsafe.Pointer(children[0]))
		cfree(unsafe.Pointer(arr.children))
	}

	if arr.private_data != nil {
		h := getHandle(arr.private_data)
		data := h.Value().(arrow.ArrayData)
		h.Delete()
		cfree(arr.private_data)
		debug.Log("releasing exported array")
		data.Release()
	}
}

//export streamGetSchema
func streamGetSchema(handle *CArrowArrayStream, out *CArrowSchema) C.int {
	h := getHandle(handle.private_data)
	rdr := h.Value().(*cRecordReader)
	return C.int(rdr.getSchema(out))
}

//export streamGetNext
func streamGetNext(handle *CArrowArrayStream, out *CArrowArray) C.int {
	h := getHandle(handle.private_data)
	rdr := h.Value().(*cRecordReader)
	return C.int(rdr.next(out))
}

//export streamGetError
func streamGetError(handle *CArrowArrayStream) *C.cchar_t {
	h := getHandle(handle.private_data)
	rdr := h.Value().(*cRecordReader)
	return (*C.cchar_t)(rdr.lastErr)
}

//export streamRelease
func streamRelease(handle *CArrowArrayStream) {
	if C.ArrowArrayStreamIsReleased(handle) == 1 {
		return
	}
	defer C.ArrowArrayStreamMarkReleased(handle)

	h := getHandle(handle.private_data)
	h.Value().(*cRecordReader).release()
	h.Delete()
	cfree(handle.private_data)
}
