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

import "golang.org/x/xerrors"

// Errors reported by the importer and exporter. Every error they return
// wraps exactly one of them, so callers can classify a failure with
// errors.Is. Failures reported by a foreign stream wrap its errno instead.
var (
	// ErrFormat is returned for malformed or unrecognized format strings
	// and for types which have no format string.
	ErrFormat = xerrors.New("cdata: invalid format")
	// ErrStructure is returned when buffer counts, child counts or null
	// counts disagree with what the format requires.
	ErrStructure = xerrors.New("cdata: invalid structure")
	// ErrDictionary is returned when a dictionary is missing, unexpected,
	// or indexed by a non-integer type.
	ErrDictionary = xerrors.New("cdata: invalid dictionary")
	// ErrAllocation is returned when C memory for an exported struct
	// could not be obtained.
	ErrAllocation = xerrors.New("cdata: allocation failed")
)
