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
	"sync/atomic"
	"unsafe"

	"github.com/nealrichardson/arrow/go/arrow/internal/debug"
)

// #include "arrow/c/helpers.h"
// #include <stdlib.h>
import "C"

// importHandle owns an imported C array tree. It is shared by every
// buffer imported from that tree and acts as their memory.Allocator: the
// last buffer freed, or the importer dropping its own reference when no
// buffer was taken, releases the foreign struct exactly once.
type importHandle struct {
	refs     int64
	released int32

	arr *CArrowArray
}

// newImportHandle moves src into C memory owned by the handle and returns
// the handle holding one reference, or nil if that memory is unavailable.
// src is left untouched on failure.
func newImportHandle(src *CArrowArray) *importHandle {
	arr := allocateArrowArrayArr(1)
	if arr == nil {
		return nil
	}

	h := &importHandle{refs: 1, arr: &arr[0]}
	C.ArrowArrayMove(src, h.arr)
	return h
}

func (h *importHandle) retain() {
	atomic.AddInt64(&h.refs, 1)
}

func (h *importHandle) release() {
	debug.Assert(atomic.LoadInt64(&h.refs) > 0, "too many releases")

	if atomic.AddInt64(&h.refs, -1) != 0 {
		return
	}
	if !atomic.CompareAndSwapInt32(&h.released, 0, 1) {
		return
	}

	debug.Log("releasing imported array")
	defer cfree(unsafe.Pointer(h.arr))
	C.ArrowArrayRelease(h.arr)
	if C.ArrowArrayIsReleased(h.arr) != 1 {
		panic("did not release C mem")
	}
}

func (*importHandle) Allocate(int) []byte {
	panic("cannot allocate from importHandle")
}

func (*importHandle) Reallocate(int, []byte) []byte {
	panic("cannot reallocate from importHandle")
}

// Free is called once by each imported buffer when its last reference
// goes away.
func (h *importHandle) Free([]byte) { h.release() }
