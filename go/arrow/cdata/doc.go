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

// Package cdata provides zero-copy exchange of Arrow arrays, schemas and
// record batch streams with any other library implementing the Arrow C
// Data Interface and C Stream Interface.
//
// Exporting fills caller provided C structs. The Go data stays retained
// until whoever ends up owning the struct calls its release callback;
// structs can be handed around with MoveCArrowArray and MoveCArrowSchema,
// including a single child moved out of its parent.
//
// Importing consumes the C struct: it is moved into memory owned by this
// package and its release callback runs exactly once, when the last Go
// array built on top of it (or any child or dictionary taken from one) is
// released, or immediately when the import fails or references no buffer
// at all. Imports never copy buffers.
//
// Import and export errors wrap one of ErrFormat, ErrStructure,
// ErrDictionary or ErrAllocation and can be classified with errors.Is.
// A failing foreign stream reports a syscall.Errno with its message.
//
// The package requires cgo. Building with the "assert" or "debug" tags
// turns on internal assertions, "debug" also logs handle teardown. Under
// "debug" and "test" every C allocation is kept in a leak ledger. The
// package tests build a C producer under the "test" tag:
//
//	go test -tags test ./...
package cdata
