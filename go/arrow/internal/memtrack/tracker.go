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

// Package memtrack keeps a ledger of raw memory obtained outside of the Go
// heap, so that code handing memory across a C boundary can prove every
// allocation was matched by a free.
package memtrack

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// allocations are recorded by a small allocation helper on behalf of its
// caller, so skip the helper frame to report the code that wanted memory.
const allocFrames = 2

type dalloc struct {
	pc   uintptr
	line int
	sz   int
}

// Tracker records live allocations keyed by address along with the
// call site which requested them.
type Tracker struct {
	sz        int64
	failAfter int64

	allocs sync.Map
}

func NewTracker() *Tracker {
	return &Tracker{failAfter: -1}
}

// Record adds an allocation of size bytes at ptr to the ledger.
func (t *Tracker) Record(ptr unsafe.Pointer, size int) {
	if ptr == nil {
		return
	}

	atomic.AddInt64(&t.sz, int64(size))
	pc, _, l, ok := runtime.Caller(allocFrames)
	if !ok {
		pc, l = 0, 0
	}
	t.allocs.Store(uintptr(ptr), &dalloc{pc: pc, line: l, sz: size})
}

// Forget removes the allocation at ptr from the ledger. Unknown and nil
// pointers are ignored.
func (t *Tracker) Forget(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	v, ok := t.allocs.LoadAndDelete(uintptr(ptr))
	if !ok {
		return
	}
	atomic.AddInt64(&t.sz, -int64(v.(*dalloc).sz))
}

// CurrentAlloc returns the number of bytes currently recorded.
func (t *Tracker) CurrentAlloc() int { return int(atomic.LoadInt64(&t.sz)) }

// FailAfter lets the next n calls to ShouldFail pass and makes the one
// after them report a failure. A negative n disables injection.
func (t *Tracker) FailAfter(n int) { atomic.StoreInt64(&t.failAfter, int64(n)) }

// ShouldFail is consulted by allocation helpers before allocating and
// returns true exactly once when an injected failure is due.
func (t *Tracker) ShouldFail() bool {
	for {
		cur := atomic.LoadInt64(&t.failAfter)
		if cur < 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&t.failAfter, cur, cur-1) {
			return cur == 0
		}
	}
}

type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Helper()
}

// AssertSize fails t if the ledger does not hold exactly sz bytes,
// reporting the origin of every outstanding allocation.
func (t *Tracker) AssertSize(tt TestingT, sz int) {
	tt.Helper()
	if cur := t.CurrentAlloc(); cur != sz {
		t.allocs.Range(func(_, value interface{}) bool {
			info := value.(*dalloc)
			name := "unknown"
			if f := runtime.FuncForPC(info.pc); f != nil {
				name = f.Name()
			}
			tt.Errorf("LEAK of %d bytes FROM %s line %d\n", info.sz, name, info.line)
			return true
		})
		tt.Errorf("invalid memory size exp=%d, got=%d", sz, cur)
	}
}

// Scope captures the ledger size at creation so a test can check that
// a block of work returned everything it took.
type Scope struct {
	tracker *Tracker
	sz      int
}

func NewScope(t *Tracker) *Scope {
	return &Scope{tracker: t, sz: t.CurrentAlloc()}
}

func (s *Scope) CheckSize(tt TestingT) {
	if cur := s.tracker.CurrentAlloc(); s.sz != cur {
		tt.Helper()
		tt.Errorf("invalid memory size exp=%d, got=%d", s.sz, cur)
	}
}
