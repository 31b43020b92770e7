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

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallocWithoutLedger(t *testing.T) {
	assert.Nil(t, callocBytes(0, 8))
	assert.Nil(t, callocBytes(8, 0))

	p := callocBytes(4, 8)
	require.NotNil(t, p)
	assert.Equal(t, make([]byte, 32), unsafe.Slice((*byte)(p), 32))
	cfree(p)
	cfree(nil)
}
