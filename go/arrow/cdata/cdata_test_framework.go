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

// Test fixtures standing in for a foreign producer. _test.go files cannot
// use cgo, so the C side of the tests lives here behind the test tag.
//
// Fixture memory comes straight from calloc and is freed by the fixture
// release callbacks; it never shows up in the package ledger, which only
// tracks what this package allocates itself.

// #include <stdlib.h>
// #include <string.h>
// #include "arrow/c/helpers.h"
//
// static int64_t fixture_array_releases = 0;
// static int64_t fixture_schema_releases = 0;
//
// static void fixture_free_array(struct ArrowArray* arr) {
//	 for (int64_t i = 0; i < arr->n_buffers; ++i) {
//		 free((void*)arr->buffers[i]);
//	 }
//	 free(arr->buffers);
//	 for (int64_t i = 0; i < arr->n_children; ++i) {
//		 if (arr->children[i]->release != NULL) {
//			 arr->children[i]->release(arr->children[i]);
//		 }
//		 free(arr->children[i]);
//	 }
//	 free(arr->children);
//	 if (arr->dictionary != NULL) {
//		 if (arr->dictionary->release != NULL) {
//			 arr->dictionary->release(arr->dictionary);
//		 }
//		 free(arr->dictionary);
//	 }
//	 ArrowArrayMarkReleased(arr);
// }
//
// static void fixture_release_child_array(struct ArrowArray* arr) { fixture_free_array(arr); }
//
// static void fixture_release_array(struct ArrowArray* arr) {
//	 ++fixture_array_releases;
//	 fixture_free_array(arr);
// }
//
// static void fixture_free_schema(struct ArrowSchema* schema) {
//	 free((void*)schema->format);
//	 free((void*)schema->name);
//	 free((void*)schema->metadata);
//	 for (int64_t i = 0; i < schema->n_children; ++i) {
//		 if (schema->children[i]->release != NULL) {
//			 schema->children[i]->release(schema->children[i]);
//		 }
//		 free(schema->children[i]);
//	 }
//	 free(schema->children);
//	 if (schema->dictionary != NULL) {
//		 if (schema->dictionary->release != NULL) {
//			 schema->dictionary->release(schema->dictionary);
//		 }
//		 free(schema->dictionary);
//	 }
//	 ArrowSchemaMarkReleased(schema);
// }
//
// static void fixture_release_child_schema(struct ArrowSchema* schema) { fixture_free_schema(schema); }
//
// static void fixture_release_schema(struct ArrowSchema* schema) {
//	 ++fixture_schema_releases;
//	 fixture_free_schema(schema);
// }
//
// static void fixture_set_array_release(struct ArrowArray* arr, int root) {
//	 arr->release = root ? &fixture_release_array : &fixture_release_child_array;
// }
//
// static void fixture_set_schema_release(struct ArrowSchema* schema, int root) {
//	 schema->release = root ? &fixture_release_schema : &fixture_release_child_schema;
// }
//
// static int64_t fixture_array_release_count(void) { return fixture_array_releases; }
// static int64_t fixture_schema_release_count(void) { return fixture_schema_releases; }
// static void fixture_reset_counts(void) { fixture_array_releases = 0; fixture_schema_releases = 0; }
//
// static void* fixture_alloc(size_t n) { return calloc(n == 0 ? 1 : n, 1); }
//
// static int fixture_call_get_schema(struct ArrowArrayStream* st, struct ArrowSchema* out) { return st->get_schema(st, out); }
// static int fixture_call_get_next(struct ArrowArrayStream* st, struct ArrowArray* out) { return st->get_next(st, out); }
// static const char* fixture_call_get_last_error(struct ArrowArrayStream* st) { return st->get_last_error(st); }
import "C"

import (
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
)

// fixtureArray describes a foreign ArrowArray. A nil buffer becomes a NULL
// pointer, any other slice (even an empty one) a freshly allocated copy.
type fixtureArray struct {
	length, offset, nulls int64

	buffers  [][]byte
	children []*fixtureArray
	dict     *fixtureArray
}

func cbool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func fixtureBytes(b []byte) unsafe.Pointer {
	p := C.fixture_alloc(C.size_t(len(b)))
	if len(b) > 0 {
		C.memcpy(p, unsafe.Pointer(&b[0]), C.size_t(len(b)))
	}
	return p
}

func fixtureCString(s string) *C.char {
	return (*C.char)(fixtureBytes(append([]byte(s), 0)))
}

func (f *fixtureArray) fill(out *CArrowArray, root bool) {
	C.ArrowArrayMarkReleased(out)
	out.length = C.int64_t(f.length)
	out.offset = C.int64_t(f.offset)
	out.null_count = C.int64_t(f.nulls)

	if len(f.buffers) > 0 {
		out.n_buffers = C.int64_t(len(f.buffers))
		out.buffers = (*unsafe.Pointer)(C.fixture_alloc(C.size_t(len(f.buffers)) * C.size_t(unsafe.Sizeof(unsafe.Pointer(nil)))))
		ptrs := unsafe.Slice(out.buffers, len(f.buffers))
		for i, b := range f.buffers {
			if b != nil {
				ptrs[i] = fixtureBytes(b)
			}
		}
	}

	if len(f.children) > 0 {
		out.n_children = C.int64_t(len(f.children))
		out.children = (**CArrowArray)(C.fixture_alloc(C.size_t(len(f.children)) * C.size_t(unsafe.Sizeof((*CArrowArray)(nil)))))
		ptrs := unsafe.Slice(out.children, len(f.children))
		for i, c := range f.children {
			ptrs[i] = (*CArrowArray)(C.fixture_alloc(C.size_t(C.sizeof_struct_ArrowArray)))
			c.fill(ptrs[i], false)
		}
	}

	if f.dict != nil {
		out.dictionary = (*CArrowArray)(C.fixture_alloc(C.size_t(C.sizeof_struct_ArrowArray)))
		f.dict.fill(out.dictionary, false)
	}

	C.fixture_set_array_release(out, cbool(root))
}

// build returns a live foreign array allocated in C memory. Only the
// release of the root is counted by arrayReleaseCount.
func (f *fixtureArray) build() *CArrowArray {
	out := (*CArrowArray)(C.fixture_alloc(C.size_t(C.sizeof_struct_ArrowArray)))
	f.fill(out, true)
	return out
}

// fixtureSchema describes a foreign ArrowSchema.
type fixtureSchema struct {
	format, name string
	flags        int64
	metadata     []byte

	children []*fixtureSchema
	dict     *fixtureSchema
}

func (f *fixtureSchema) fill(out *CArrowSchema, root bool) {
	C.ArrowSchemaMarkReleased(out)
	out.format = fixtureCString(f.format)
	out.name = fixtureCString(f.name)
	out.flags = C.int64_t(f.flags)
	if f.metadata != nil {
		out.metadata = (*C.char)(fixtureBytes(f.metadata))
	}

	if len(f.children) > 0 {
		out.n_children = C.int64_t(len(f.children))
		out.children = (**CArrowSchema)(C.fixture_alloc(C.size_t(len(f.children)) * C.size_t(unsafe.Sizeof((*CArrowSchema)(nil)))))
		ptrs := unsafe.Slice(out.children, len(f.children))
		for i, c := range f.children {
			ptrs[i] = (*CArrowSchema)(C.fixture_alloc(C.size_t(C.sizeof_struct_ArrowSchema)))
			c.fill(ptrs[i], false)
		}
	}

	if f.dict != nil {
		out.dictionary = (*CArrowSchema)(C.fixture_alloc(C.size_t(C.sizeof_struct_ArrowSchema)))
		f.dict.fill(out.dictionary, false)
	}

	C.fixture_set_schema_release(out, cbool(root))
}

func (f *fixtureSchema) build() *CArrowSchema {
	out := (*CArrowSchema)(C.fixture_alloc(C.size_t(C.sizeof_struct_ArrowSchema)))
	f.fill(out, true)
	return out
}

// freeFixtureArray frees the root struct of a fixture. It must already be
// released or moved from.
func freeFixtureArray(p *CArrowArray) { C.free(unsafe.Pointer(p)) }

func freeFixtureSchema(p *CArrowSchema) { C.free(unsafe.Pointer(p)) }

func resetReleaseCounts()       { C.fixture_reset_counts() }
func arrayReleaseCount() int64  { return int64(C.fixture_array_release_count()) }
func schemaReleaseCount() int64 { return int64(C.fixture_schema_release_count()) }

// accessors for the fields of exported structs.

func schemaFormat(s *CArrowSchema) string { return C.GoString(s.format) }

func schemaName(s *CArrowSchema) string {
	if s.name == nil {
		return ""
	}
	return C.GoString(s.name)
}

func schemaFlags(s *CArrowSchema) int64 { return int64(s.flags) }

func schemaHasMetadata(s *CArrowSchema) bool { return s.metadata != nil }

func schemaMetadata(s *CArrowSchema) (arrow.Metadata, error) {
	return decodeCMetadata(unsafe.Pointer(s.metadata))
}

func schemaChildren(s *CArrowSchema) []*CArrowSchema {
	if s.n_children == 0 {
		return nil
	}
	return unsafe.Slice(s.children, s.n_children)
}

func schemaDictionary(s *CArrowSchema) *CArrowSchema { return s.dictionary }

func arrayLength(a *CArrowArray) int64    { return int64(a.length) }
func arrayOffset(a *CArrowArray) int64    { return int64(a.offset) }
func arrayNullCount(a *CArrowArray) int64 { return int64(a.null_count) }

func arrayBuffers(a *CArrowArray) []unsafe.Pointer {
	if a.n_buffers == 0 {
		return nil
	}
	return unsafe.Slice(a.buffers, a.n_buffers)
}

func arrayChildren(a *CArrowArray) []*CArrowArray {
	if a.n_children == 0 {
		return nil
	}
	return unsafe.Slice(a.children, a.n_children)
}

func arrayDictionary(a *CArrowArray) *CArrowArray { return a.dictionary }

// bufferBytes views n bytes of buffer i of a.
func bufferBytes(a *CArrowArray, i int, n int) []byte {
	p := arrayBuffers(a)[i]
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

func isZeroRegion(p unsafe.Pointer) bool { return p == zeroRegion }

func setArrayNullCount(a *CArrowArray, n int64) { a.null_count = C.int64_t(n) }

func streamGetSchemaViaC(st *CArrowArrayStream, out *CArrowSchema) int {
	return int(C.fixture_call_get_schema(st, out))
}

func streamGetNextViaC(st *CArrowArrayStream, out *CArrowArray) int {
	return int(C.fixture_call_get_next(st, out))
}

func streamLastErrorViaC(st *CArrowArrayStream) string {
	msg := C.fixture_call_get_last_error(st)
	if msg == nil {
		return ""
	}
	return C.GoString(msg)
}

func streamIsReleased(st *CArrowArrayStream) bool { return C.ArrowArrayStreamIsReleased(st) == 1 }

// cAllocated reports the bytes of C memory this package currently owns.
func cAllocated() int { return cmem.CurrentAlloc() }

// failAllocationAfter makes the allocation after the next n fail.
func failAllocationAfter(n int) { cmem.FailAfter(n) }

func schemaFormatIsNil(s *CArrowSchema) bool { return s.format == nil }
