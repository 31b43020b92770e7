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

//go:build cgo && (test || debug)

package cdata

// #include <stdlib.h>
import "C"

import (
	"unsafe"

	"github.com/nealrichardson/arrow/go/arrow/internal/memtrack"
)

// cmem records every C allocation made by this package. Exported structs
// hand their memory to foreign consumers, so the ledger is how tests prove
// that release callbacks and error paths give all of it back.
var cmem = memtrack.NewTracker()

// callocBytes returns n*size zeroed bytes of C memory, or nil when the
// allocation fails. calloc is used rather than C.malloc, which aborts the
// process instead of reporting failure.
func callocBytes(n, size int) unsafe.Pointer {
	if n <= 0 || size <= 0 || cmem.ShouldFail() {
		return nil
	}
	p := C.calloc(C.size_t(n), C.size_t(size))
	cmem.Record(p, n*size)
	return p
}

func cfree(p unsafe.Pointer) {
	if p == nil {
		return
	}
	cmem.Forget(p)
	C.free(p)
}
