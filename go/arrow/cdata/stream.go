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

// #include <errno.h>
// #include "arrow/c/helpers.h"
//
// extern int streamGetSchema(struct ArrowArrayStream*, struct ArrowSchema*);
// extern int streamGetNext(struct ArrowArrayStream*, struct ArrowArray*);
// extern const char* streamGetError(struct ArrowArrayStream*);
// extern void streamRelease(struct ArrowArrayStream*);
//
// int stream_get_schema(struct ArrowArrayStream* st, struct ArrowSchema* out);
// int stream_get_next(struct ArrowArrayStream* st, struct ArrowArray* out);
// const char* stream_get_last_error(struct ArrowArrayStream* st);
import "C"

import (
	"errors"
	"io"
	"runtime/cgo"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/arrio"
	"github.com/nealrichardson/arrow/go/arrow/internal/debug"
	"golang.org/x/xerrors"
)

// cRecordReader backs an exported ArrowArrayStream.
type cRecordReader struct {
	rdr array.RecordReader
	// message of the last failed call, valid until the next call
	lastErr *C.char
}

func (rr *cRecordReader) fail(err error) int {
	cfree(unsafe.Pointer(rr.lastErr))
	rr.lastErr = cstring(err.Error())
	if errors.Is(err, ErrAllocation) {
		return int(C.ENOMEM)
	}
	return int(C.EIO)
}

func (rr *cRecordReader) getSchema(out *CArrowSchema) int {
	schema := rr.rdr.Schema()
	if schema == nil {
		return rr.fail(xerrors.New("record reader has no schema"))
	}

	if err := ExportArrowSchema(schema, out); err != nil {
		return rr.fail(err)
	}
	return 0
}

// next exports the next batch into out, or leaves out released at the
// end of the stream.
func (rr *cRecordReader) next(out *CArrowArray) int {
	C.ArrowArrayMarkReleased(out)
	if !rr.rdr.Next() {
		if err := rr.rdr.Err(); err != nil {
			return rr.fail(err)
		}
		return 0
	}

	if err := ExportArrowRecordBatch(rr.rdr.Record(), out, nil); err != nil {
		return rr.fail(err)
	}
	return 0
}

func (rr *cRecordReader) release() {
	cfree(unsafe.Pointer(rr.lastErr))
	rr.lastErr = nil
	rr.rdr.Release()
}

func exportStream(rdr array.RecordReader, out *CArrowArrayStream) error {
	C.ArrowArrayStreamMarkReleased(out)

	rdr.Retain()
	h := cgo.NewHandle(&cRecordReader{rdr: rdr})
	hptr := createHandle(h)
	if hptr == nil {
		h.Delete()
		rdr.Release()
		return allocationError("stream private data")
	}

	out.get_schema = (*[0]byte)(C.streamGetSchema)
	out.get_next = (*[0]byte)(C.streamGetNext)
	out.get_last_error = (*[0]byte)(C.streamGetError)
	out.release = (*[0]byte)(C.streamRelease)
	out.private_data = hptr
	return nil
}

// StreamReader reads record batches from an imported ArrowArrayStream.
// It satisfies arrio.Reader. Every batch is imported on its own, so
// batches stay valid after the reader moves on or is released.
//
// The stream is released when the reader's reference count drops to
// zero; there is no finalizer, so Release must be called.
type StreamReader struct {
	refs   int64
	stream *CArrowArrayStream
	schema *arrow.Schema

	cur arrow.Record
	err error
}

var _ arrio.Reader = (*StreamReader)(nil)

func newStreamReader(stream *CArrowArrayStream, schema *arrow.Schema) (*StreamReader, error) {
	if stream == nil || C.ArrowArrayStreamIsReleased(stream) == 1 {
		return nil, structureError("cannot import a released stream")
	}

	st := (*CArrowArrayStream)(callocBytes(1, int(C.sizeof_struct_ArrowArrayStream)))
	if st == nil {
		C.ArrowArrayStreamRelease(stream)
		return nil, allocationError("stream")
	}
	C.ArrowArrayStreamMove(stream, st)

	rdr := &StreamReader{refs: 1, stream: st, schema: schema}
	if rdr.schema != nil {
		return rdr, nil
	}

	var sc CArrowSchema
	if errno := C.stream_get_schema(rdr.stream, &sc); errno != 0 {
		err := rdr.getError(int(errno))
		rdr.Release()
		return nil, err
	}

	s, err := ImportCArrowSchema(&sc)
	if err != nil {
		rdr.Release()
		return nil, err
	}
	rdr.schema = s
	return rdr, nil
}

func (r *StreamReader) Retain() {
	atomic.AddInt64(&r.refs, 1)
}

// Release decreases the reference count, releasing the current batch and
// the C stream once it reaches zero.
func (r *StreamReader) Release() {
	debug.Assert(atomic.LoadInt64(&r.refs) > 0, "too many releases")

	if atomic.AddInt64(&r.refs, -1) == 0 {
		if r.cur != nil {
			r.cur.Release()
			r.cur = nil
		}
		C.ArrowArrayStreamRelease(r.stream)
		cfree(unsafe.Pointer(r.stream))
		r.stream = nil
	}
}

func (r *StreamReader) Schema() *arrow.Schema { return r.schema }

func (r *StreamReader) Err() error { return r.err }

// Record returns the current batch, which is only valid until the next
// call to Next unless the caller retains it.
func (r *StreamReader) Record() arrow.Record { return r.cur }

func (r *StreamReader) Next() bool {
	err := r.next()
	switch {
	case err == nil:
		return true
	case err == io.EOF:
		return false
	}
	r.err = err
	return false
}

func (r *StreamReader) next() error {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}

	var arr CArrowArray
	if errno := C.stream_get_next(r.stream, &arr); errno != 0 {
		return r.getError(int(errno))
	}

	if C.ArrowArrayIsReleased(&arr) == 1 {
		return io.EOF
	}

	rec, err := ImportCRecordBatchWithSchema(&arr, r.schema)
	if err != nil {
		return err
	}

	r.cur = rec
	return nil
}

// Read returns the next batch, or io.EOF at the end of the stream. The
// batch is owned by the reader as with Record.
func (r *StreamReader) Read() (arrow.Record, error) {
	if err := r.next(); err != nil {
		if err != io.EOF {
			r.err = err
		}
		return nil, err
	}
	return r.cur, nil
}

func (r *StreamReader) getError(errno int) error {
	msg := "unknown error"
	if cmsg := C.stream_get_last_error(r.stream); cmsg != nil {
		msg = C.GoString(cmsg)
	}
	return xerrors.Errorf("%w: %s", syscall.Errno(errno), msg)
}
