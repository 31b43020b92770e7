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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRecordsAllocations(t *testing.T) {
	base := cAllocated()

	p := callocBytes(3, 8)
	require.NotNil(t, p)
	assert.Equal(t, base+24, cAllocated())

	cfree(p)
	assert.Equal(t, base, cAllocated())

	failAllocationAfter(0)
	defer failAllocationAfter(-1)
	assert.Nil(t, callocBytes(1, 8))
	assert.Equal(t, base, cAllocated())

	// injected failures fire once
	p = callocBytes(1, 8)
	require.NotNil(t, p)
	cfree(p)
	assert.Equal(t, base, cAllocated())
}
