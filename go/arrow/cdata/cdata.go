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

// implement handling of the Arrow C Data Interface, importing side and
// the C memory helpers shared with the exporter.

// #include "arrow/c/abi.h"
// #include "arrow/c/helpers.h"
// #include <stdlib.h>
//
// extern void releaseExportedSchema(struct ArrowSchema* schema);
// extern void releaseExportedArray(struct ArrowArray* array);
//
// void goReleaseArray(struct ArrowArray* array) { releaseExportedArray(array); }
//
// void goReleaseSchema(struct ArrowSchema* schema) {
//	 releaseExportedSchema(schema);
// }
//
// int stream_get_schema(struct ArrowArrayStream* st, struct ArrowSchema* out) { return st->get_schema(st, out); }
// int stream_get_next(struct ArrowArrayStream* st, struct ArrowArray* out) { return st->get_next(st, out); }
// const char* stream_get_last_error(struct ArrowArrayStream* st) { return st->get_last_error(st); }
//
// const void* cdata_zero_region(void) {
//	 static const int64_t zeros[8] = {0};
//	 return zeros;
// }
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/exp/constraints"
	"golang.org/x/xerrors"
)

type (
	// CArrowSchema is the C Data Interface for ArrowSchemas defined in abi.h
	CArrowSchema = C.struct_ArrowSchema
	// CArrowArray is the C Data Interface object for Arrow Arrays as defined in abi.h
	CArrowArray = C.struct_ArrowArray
	// CArrowArrayStream is the C Stream Interface object for handling streams
	// of record batches.
	CArrowArrayStream = C.struct_ArrowArrayStream
)

// exported non-validity buffers of length zero point here so that
// consumers never receive NULL offsets or data.
var zeroRegion = unsafe.Pointer(C.cdata_zero_region())

func cstring(s string) *C.char {
	p := callocBytes(len(s)+1, 1)
	if p == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(p), len(s)), s)
	return (*C.char)(p)
}

func cbytes(b []byte) *C.char {
	p := callocBytes(len(b), 1)
	if p == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(p), len(b)), b)
	return (*C.char)(p)
}

func allocateArrowSchemaArr(n int) []CArrowSchema {
	p := callocBytes(n, int(C.sizeof_struct_ArrowSchema))
	if p == nil {
		return nil
	}
	return unsafe.Slice((*CArrowSchema)(p), n)
}

func allocateArrowSchemaPtrArr(n int) []*CArrowSchema {
	p := callocBytes(n, int(unsafe.Sizeof((*CArrowSchema)(nil))))
	if p == nil {
		return nil
	}
	return unsafe.Slice((**CArrowSchema)(p), n)
}

func allocateArrowArrayArr(n int) []CArrowArray {
	p := callocBytes(n, int(C.sizeof_struct_ArrowArray))
	if p == nil {
		return nil
	}
	return unsafe.Slice((*CArrowArray)(p), n)
}

func allocateArrowArrayPtrArr(n int) []*CArrowArray {
	p := callocBytes(n, int(unsafe.Sizeof((*CArrowArray)(nil))))
	if p == nil {
		return nil
	}
	return unsafe.Slice((**CArrowArray)(p), n)
}

func allocateBufferPtrArr(n int) []unsafe.Pointer {
	p := callocBytes(n, int(unsafe.Sizeof(unsafe.Pointer(nil))))
	if p == nil {
		return nil
	}
	return unsafe.Slice((*unsafe.Pointer)(p), n)
}

func allocationError(what string) error {
	return xerrors.Errorf("%w: %s", ErrAllocation, what)
}

// private_data holds the address of a C allocated uintptr_t containing a
// cgo.Handle, so that no Go pointer is stored in C memory.
func createHandle(hndl cgo.Handle) unsafe.Pointer {
	hptr := (*C.uintptr_t)(callocBytes(1, int(C.sizeof_uintptr_t)))
	if hptr == nil {
		return nil
	}
	*hptr = C.uintptr_t(uintptr(hndl))
	return unsafe.Pointer(hptr)
}

func getHandle(ptr unsafe.Pointer) cgo.Handle {
	hptr := (*C.uintptr_t)(ptr)
	return cgo.Handle((uintptr)(*hptr))
}

func structureError(format string, args ...interface{}) error {
	return xerrors.Errorf("%w: "+format, append([]interface{}{ErrStructure}, args...)...)
}

// convert a CArrowSchema to an arrow.Field to maintain metadata with the schema
func importSchema(schema *CArrowSchema) (ret arrow.Field, err error) {
	if schema == nil || C.ArrowSchemaIsReleased(schema) == 1 {
		return ret, structureError("schema is released")
	}
	if schema.format == nil {
		return ret, structureError("schema has a NULL format")
	}
	if schema.n_children < 0 || (schema.n_children > 0 && schema.children == nil) {
		return ret, structureError("schema has %d children but children is NULL", schema.n_children)
	}

	// copies the c-string here, but it's very small
	f := C.GoString(schema.format)
	spec, err := parseFormat(f)
	if err != nil {
		return ret, err
	}

	var childFields []arrow.Field
	if schema.n_children > 0 {
		// call ourselves recursively if there are children.
		schemaChildren := unsafe.Slice(schema.children, schema.n_children)
		childFields = make([]arrow.Field, schema.n_children)
		for i, c := range schemaChildren {
			if childFields[i], err = importSchema(c); err != nil {
				return
			}
		}
	}

	flags := int64(schema.flags)
	dt, err := spec.dataType(childFields, flags)
	if err != nil {
		return ret, err
	}

	if schema.dictionary != nil {
		if !arrow.IsInteger(dt.ID()) {
			return ret, xerrors.Errorf("%w: dictionary index format %q is not an integer type", ErrDictionary, f)
		}
		valueField, err := importSchema(schema.dictionary)
		if err != nil {
			return ret, err
		}
		dt = &arrow.DictionaryType{
			IndexType: dt,
			ValueType: valueField.Type,
			Ordered:   flags&flagDictionaryOrdered != 0,
		}
	}

	if schema.name != nil {
		ret.Name = C.GoString(schema.name)
	}
	ret.Nullable = flags&flagNullable != 0
	ret.Type = dt
	if ret.Metadata, err = decodeCMetadata(unsafe.Pointer(schema.metadata)); err != nil {
		return ret, err
	}

	return ret, importExtension(&ret)
}

// importExtension swaps the storage type of f for its registered extension
// type. Unregistered extensions keep their storage type and metadata.
func importExtension(f *arrow.Field) error {
	name, ok := f.Metadata.GetValue(ipc.ExtensionTypeKeyName)
	if !ok {
		return nil
	}

	typ := arrow.GetExtensionType(name)
	if typ == nil {
		return nil
	}

	serialized, _ := f.Metadata.GetValue(ipc.ExtensionMetadataKeyName)
	ext, err := typ.Deserialize(f.Type, serialized)
	if err != nil {
		return xerrors.Errorf("%w: extension %q: %s", ErrFormat, name, err)
	}

	keys, vals := make([]string, 0, f.Metadata.Len()), make([]string, 0, f.Metadata.Len())
	for i, k := range f.Metadata.Keys() {
		if k == ipc.ExtensionTypeKeyName || k == ipc.ExtensionMetadataKeyName {
			continue
		}
		keys = append(keys, k)
		vals = append(vals, f.Metadata.Values()[i])
	}
	f.Type = ext
	f.Metadata = arrow.NewMetadata(keys, vals)
	return nil
}

// importer to keep track when importing C ArrowArray objects.
//
// Every buffer taken from the C struct is a memory.Buffer whose allocator is
// the shared importHandle, so the C struct stays alive while any array
// built from it does.
type cimporter struct {
	dt       arrow.DataType
	arr      *CArrowArray
	data     arrow.ArrayData
	handle   *importHandle
	children []cimporter
	dict     *cimporter
	cbuffers []unsafe.Pointer

	// references held only until the ArrayData for this node exists
	bufs []*memory.Buffer
}

// releaseParts drops the importer's own references to buffers and child
// data. On success the constructed ArrayData holds its own references, on
// failure this returns the handle references taken so far.
func (imp *cimporter) releaseParts() {
	for _, b := range imp.bufs {
		b.Release()
	}
	imp.bufs = nil
	for i := range imp.children {
		if imp.children[i].data != nil {
			imp.children[i].data.Release()
			imp.children[i].data = nil
		}
	}
	if imp.dict != nil && imp.dict.data != nil {
		imp.dict.data.Release()
		imp.dict.data = nil
	}
}

// import any child arrays for lists, structs, and so on.
func (imp *cimporter) doImportChildren(storage arrow.DataType) error {
	var fields []arrow.Field
	if nt, ok := storage.(arrow.NestedType); ok {
		fields = nt.Fields()
	}

	if err := imp.checkNumChildren(int64(len(fields))); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	children := unsafe.Slice(imp.arr.children, imp.arr.n_children)
	imp.children = make([]cimporter, len(children))
	for i, c := range children {
		if c == nil {
			return structureError("child %d of imported type %s is NULL", i, imp.dt)
		}
		imp.children[i] = cimporter{dt: fields[i].Type, handle: imp.handle}
		if err := imp.children[i].doImport(c); err != nil {
			return err
		}
	}
	return nil
}

func (imp *cimporter) childData() []arrow.ArrayData {
	children := make([]arrow.ArrayData, len(imp.children))
	for i := range imp.children {
		children[i] = imp.children[i].data
	}
	return children
}

// import is called recursively as needed for importing an array and its children
// in order to generate array.Data objects
func (imp *cimporter) doImport(src *CArrowArray) error {
	imp.arr = src
	defer imp.releaseParts()

	if C.ArrowArrayIsReleased(src) == 1 {
		return structureError("array for imported type %s is released", imp.dt)
	}
	if src.length < 0 || src.offset < 0 {
		return structureError("negative length %d or offset %d", src.length, src.offset)
	}
	if src.null_count < -1 {
		return structureError("invalid null_count %d", src.null_count)
	}
	if src.n_buffers < 0 || (src.n_buffers > 0 && src.buffers == nil) {
		return structureError("array has %d buffers but buffers is NULL", src.n_buffers)
	}
	if src.n_children < 0 || (src.n_children > 0 && src.children == nil) {
		return structureError("array has %d children but children is NULL", src.n_children)
	}

	storage := imp.dt
	if ext, ok := storage.(arrow.ExtensionType); ok {
		storage = ext.StorageType()
	}

	dictType, isDict := storage.(*arrow.DictionaryType)
	switch {
	case isDict && src.dictionary == nil:
		return xerrors.Errorf("%w: imported type %s has no dictionary array", ErrDictionary, imp.dt)
	case !isDict && src.dictionary != nil:
		return xerrors.Errorf("%w: imported type %s is not dictionary encoded but has a dictionary array", ErrDictionary, imp.dt)
	case isDict:
		if !arrow.IsInteger(dictType.IndexType.ID()) {
			return xerrors.Errorf("%w: index type %s is not an integer", ErrDictionary, dictType.IndexType)
		}
		imp.dict = &cimporter{dt: dictType.ValueType, handle: imp.handle}
		if err := imp.dict.doImport(src.dictionary); err != nil {
			return err
		}
		storage = dictType.IndexType
	}

	// import any children
	if err := imp.doImportChildren(storage); err != nil {
		return err
	}

	if src.n_buffers > 0 {
		// get a view of the buffers, zero-copy. we're just looking at the pointers
		imp.cbuffers = unsafe.Slice(src.buffers, src.n_buffers)
	}

	var (
		bufs  []*memory.Buffer
		nulls = int(src.null_count)
		err   error
	)

	// handle each of our type cases
	switch dt := storage.(type) {
	case *arrow.NullType:
		if src.n_buffers != 0 {
			if err := imp.checkNumBuffers(1); err != nil {
				return err
			}
		}
		bufs, nulls = []*memory.Buffer{nil}, int(src.length)
	case *arrow.BinaryViewType, *arrow.StringViewType:
		bufs, err = imp.importBinaryView()
	case *arrow.ListViewType:
		bufs, err = importListView[int32](imp)
	case *arrow.LargeListViewType:
		bufs, err = importListView[int64](imp)
	case *arrow.BooleanType, arrow.FixedWidthDataType:
		bufs, err = imp.importFixedSizePrimitive()
	case *arrow.StringType, *arrow.BinaryType:
		bufs, err = importStringLike[int32](imp)
	case *arrow.LargeStringType, *arrow.LargeBinaryType:
		bufs, err = importStringLike[int64](imp)
	case *arrow.ListType, *arrow.MapType:
		bufs, err = importListLike[int32](imp)
	case *arrow.LargeListType:
		bufs, err = importListLike[int64](imp)
	case *arrow.FixedSizeListType, *arrow.StructType:
		bufs, err = imp.importValidityOnly()
	case *arrow.RunEndEncodedType:
		if err := imp.checkNoNulls(); err != nil {
			return err
		}
		if err := imp.checkNumBuffers(0); err != nil {
			return err
		}
		bufs, nulls = []*memory.Buffer{nil}, 0
	case *arrow.SparseUnionType:
		bufs, err = imp.importUnion(arrow.SparseMode)
		nulls = 0
	case *arrow.DenseUnionType:
		bufs, err = imp.importUnion(arrow.DenseMode)
		nulls = 0
	default:
		return xerrors.Errorf("%w: unimplemented type %s", ErrFormat, dt)
	}
	if err != nil {
		return err
	}
	if nulls < 0 && (len(bufs) == 0 || bufs[0] == nil) {
		nulls = 0
	}

	if imp.dict != nil {
		imp.data = array.NewDataWithDictionary(imp.dt, int(src.length), bufs, nulls, int(src.offset), imp.dict.data.(*array.Data))
	} else {
		imp.data = array.NewData(imp.dt, int(src.length), bufs, imp.childData(), nulls, int(src.offset))
	}
	return nil
}

func importStringLike[T int32 | int64](imp *cimporter) ([]*memory.Buffer, error) {
	if err := imp.checkNumBuffers(3); err != nil {
		return nil, err
	}

	nulls, err := imp.importNullBitmap(0)
	if err != nil {
		return nil, err
	}

	offsets, err := imp.importOffsetsBuffer(1, int64(unsafe.Sizeof(T(0))))
	if err != nil {
		return nil, err
	}

	nvals, err := lastOffset[T](offsets.Bytes())
	if err != nil {
		return nil, err
	}

	values, err := imp.importVariableValuesBuffer(2, 1, nvals)
	if err != nil {
		return nil, err
	}
	return []*memory.Buffer{nulls, offsets, values}, nil
}

func importListLike[T int32 | int64](imp *cimporter) ([]*memory.Buffer, error) {
	if err := imp.checkNumBuffers(2); err != nil {
		return nil, err
	}

	nulls, err := imp.importNullBitmap(0)
	if err != nil {
		return nil, err
	}

	offsets, err := imp.importOffsetsBuffer(1, int64(unsafe.Sizeof(T(0))))
	if err != nil {
		return nil, err
	}
	return []*memory.Buffer{nulls, offsets}, nil
}

// list views hold an offset and a size per element, both of the same width.
func importListView[T int32 | int64](imp *cimporter) ([]*memory.Buffer, error) {
	if err := imp.checkNumBuffers(3); err != nil {
		return nil, err
	}

	nulls, err := imp.importNullBitmap(0)
	if err != nil {
		return nil, err
	}

	width := int64(unsafe.Sizeof(T(0)))
	offsets, err := imp.importFixedSizeBuffer(1, width)
	if err != nil {
		return nil, err
	}
	sizes, err := imp.importFixedSizeBuffer(2, width)
	if err != nil {
		return nil, err
	}
	return []*memory.Buffer{nulls, offsets, sizes}, nil
}

// binary views are [validity, views, data..., sizes], the final buffer
// holding one int64 length per data buffer. The Go layout drops it.
func (imp *cimporter) importBinaryView() ([]*memory.Buffer, error) {
	n := int(imp.arr.n_buffers)
	if n < 3 {
		return nil, structureError("expected at least 3 buffers for imported type %s, ArrowArray has %d", imp.dt, n)
	}

	nulls, err := imp.importNullBitmap(0)
	if err != nil {
		return nil, err
	}
	views, err := imp.importFixedSizeBuffer(1, int64(arrow.ViewHeaderSizeBytes))
	if err != nil {
		return nil, err
	}

	nvariadic := n - 3
	bufs := make([]*memory.Buffer, 2, 2+nvariadic)
	bufs[0], bufs[1] = nulls, views
	if nvariadic == 0 {
		return bufs, nil
	}

	if imp.cbuffers[n-1] == nil {
		return nil, structureError("imported type %s has %d data buffers but no buffer sizes", imp.dt, nvariadic)
	}
	sizes := unsafe.Slice((*int64)(imp.cbuffers[n-1]), nvariadic)
	for i, sz := range sizes {
		if sz < 0 {
			return nil, structureError("negative size %d for data buffer %d", sz, i)
		}
		buf, err := imp.importBuffer(2+i, sz)
		if err != nil {
			return nil, err
		}
		bufs = append(bufs, buf)
	}
	return bufs, nil
}

// lastOffset reads the final entry of an offsets buffer, which is the
// number of values referenced by the array.
func lastOffset[T constraints.Signed](offsets []byte) (int64, error) {
	var sz = int(unsafe.Sizeof(T(0)))
	if len(offsets) < sz {
		return 0, nil
	}

	last := *(*T)(unsafe.Pointer(&offsets[len(offsets)-sz]))
	if last < 0 {
		return 0, structureError("negative final offset %d", last)
	}
	return int64(last), nil
}

func (imp *cimporter) importValidityOnly() ([]*memory.Buffer, error) {
	if err := imp.checkNumBuffers(1); err != nil {
		return nil, err
	}

	nulls, err := imp.importNullBitmap(0)
	if err != nil {
		return nil, err
	}
	return []*memory.Buffer{nulls}, nil
}

func (imp *cimporter) importFixedSizePrimitive() ([]*memory.Buffer, error) {
	if err := imp.checkNumBuffers(2); err != nil {
		return nil, err
	}

	nulls, err := imp.importNullBitmap(0)
	if err != nil {
		return nil, err
	}

	var values *memory.Buffer

	fw := imp.dataLayoutType().(arrow.FixedWidthDataType)
	if bitutil.IsMultipleOf8(int64(fw.BitWidth())) {
		values, err = imp.importFixedSizeBuffer(1, bitutil.BytesForBits(int64(fw.BitWidth())))
	} else {
		if fw.BitWidth() != 1 {
			return nil, xerrors.Errorf("%w: invalid bitwidth %d", ErrFormat, fw.BitWidth())
		}
		values, err = imp.importBitsBuffer(1)
	}
	if err != nil {
		return nil, err
	}
	return []*memory.Buffer{nulls, values}, nil
}

// the type describing this node's own buffers: the storage of an extension
// and the indices of a dictionary.
func (imp *cimporter) dataLayoutType() arrow.DataType {
	dt := imp.dt
	if ext, ok := dt.(arrow.ExtensionType); ok {
		dt = ext.StorageType()
	}
	if dict, ok := dt.(*arrow.DictionaryType); ok {
		dt = dict.IndexType
	}
	return dt
}

// unions have no validity bitmap. The current layout is [type_ids(, offsets)],
// older producers also send a leading NULL validity slot, and the oldest
// sparse producers a trailing NULL offsets slot as well.
func (imp *cimporter) importUnion(mode arrow.UnionMode) ([]*memory.Buffer, error) {
	if err := imp.checkNoNulls(); err != nil {
		return nil, err
	}

	n := imp.arr.n_buffers
	var first int
	switch {
	case mode == arrow.SparseMode && n == 1, mode == arrow.DenseMode && n == 2:
		first = 0
	case mode == arrow.SparseMode && (n == 2 || n == 3), mode == arrow.DenseMode && n == 3:
		first = 1
	default:
		return nil, structureError("invalid number of buffers %d for imported type %s", n, imp.dt)
	}

	typeIDs, err := imp.importFixedSizeBuffer(first, int64(arrow.Int8SizeBytes))
	if err != nil {
		return nil, err
	}
	if mode == arrow.SparseMode {
		return []*memory.Buffer{nil, typeIDs}, nil
	}

	offsets, err := imp.importFixedSizeBuffer(first+1, int64(arrow.Int32SizeBytes))
	if err != nil {
		return nil, err
	}
	return []*memory.Buffer{nil, typeIDs, offsets}, nil
}

func (imp *cimporter) checkNoNulls() error {
	if imp.arr.null_count > 0 {
		return structureError("imported type %s cannot have nulls, null_count is %d", imp.dt, imp.arr.null_count)
	}
	return nil
}

func (imp *cimporter) checkNumChildren(n int64) error {
	if int64(imp.arr.n_children) != n {
		return structureError("expected %d children for imported type %s, ArrowArray has %d", n, imp.dt, imp.arr.n_children)
	}
	return nil
}

func (imp *cimporter) checkNumBuffers(n int64) error {
	if int64(imp.arr.n_buffers) != n {
		return structureError("expected %d buffers for imported type %s, ArrowArray has %d", n, imp.dt, imp.arr.n_buffers)
	}
	return nil
}

func (imp *cimporter) importBuffer(bufferID int, sz int64) (*memory.Buffer, error) {
	if imp.cbuffers[bufferID] == nil {
		if sz != 0 {
			return nil, structureError("buffer %d of imported type %s is NULL but %d bytes are required", bufferID, imp.dt, sz)
		}
		return memory.NewBufferBytes([]byte{}), nil
	}

	// this is not a copy, the slice points at the foreign data which stays
	// owned by the C struct until the handle's last reference is released.
	data := unsafe.Slice((*byte)(imp.cbuffers[bufferID]), sz)
	imp.handle.retain()
	buf := memory.NewBufferWithAllocator(data, imp.handle)
	imp.bufs = append(imp.bufs, buf)
	return buf, nil
}

func (imp *cimporter) importBitsBuffer(bufferID int) (*memory.Buffer, error) {
	bufsize := bitutil.BytesForBits(int64(imp.arr.length) + int64(imp.arr.offset))
	return imp.importBuffer(bufferID, bufsize)
}

func (imp *cimporter) importNullBitmap(bufferID int) (*memory.Buffer, error) {
	if imp.cbuffers[bufferID] == nil {
		if imp.arr.null_count > 0 {
			return nil, structureError("arrowarray struct has null bitmap buffer, but non-zero null_count %d", imp.arr.null_count)
		}
		return nil, nil
	}

	return imp.importBitsBuffer(bufferID)
}

func (imp *cimporter) importFixedSizeBuffer(bufferID int, byteWidth int64) (*memory.Buffer, error) {
	bufsize := byteWidth * int64(imp.arr.length+imp.arr.offset)
	return imp.importBuffer(bufferID, bufsize)
}

func (imp *cimporter) importOffsetsBuffer(bufferID int, offsetsize int64) (*memory.Buffer, error) {
	if imp.cbuffers[bufferID] == nil && imp.arr.length == 0 {
		// some producers send no offsets at all for empty arrays
		return memory.NewBufferBytes([]byte{}), nil
	}
	bufsize := offsetsize * int64((imp.arr.length + imp.arr.offset + 1))
	return imp.importBuffer(bufferID, bufsize)
}

func (imp *cimporter) importVariableValuesBuffer(bufferID int, byteWidth, nvals int64) (*memory.Buffer, error) {
	return imp.importBuffer(bufferID, byteWidth*nvals)
}

// importCArrayAsType moves arr into a new import handle and builds
// ArrayData of type dt on top of it. arr is left released whatever the
// outcome; on failure the foreign release callback has already run.
func importCArrayAsType(arr *CArrowArray, dt arrow.DataType) (arrow.ArrayData, error) {
	if arr == nil || C.ArrowArrayIsReleased(arr) == 1 {
		return nil, structureError("cannot import a released array")
	}

	h := newImportHandle(arr)
	if h == nil {
		C.ArrowArrayRelease(arr)
		return nil, allocationError("import handle")
	}
	// the importer's own reference, once it is gone only the buffers
	// of the imported data keep the C struct alive.
	defer h.release()

	imp := &cimporter{dt: dt, handle: h}
	if err := imp.doImport(h.arr); err != nil {
		return nil, err
	}
	return imp.data, nil
}
