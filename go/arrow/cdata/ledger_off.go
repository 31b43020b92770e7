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

//go:build cgo && !test && !debug

package cdata

// #include <stdlib.h>
import "C"

import "unsafe"

// callocBytes returns n*size zeroed bytes of C memory, or nil when the
// allocation fails. calloc is used rather than C.malloc, which aborts the
// process instead of reporting failure.
func callocBytes(n, size int) unsafe.Pointer {
	if n <= 0 || size <= 0 {
		return nil
	}
	return C.calloc(C.size_t(n), C.size_t(size))
}

func cfree(p unsafe.Pointer) {
	if p != nil {
		C.free(p)
	}
}
