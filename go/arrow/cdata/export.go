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

// #include "arrow/c/helpers.h"
//
// void goReleaseArray(struct ArrowArray* array);
// void goReleaseSchema(struct ArrowSchema* schema);
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"golang.org/x/xerrors"
)

// schemaExporter is the Go side of an exported schema node, built
// completely before any C memory is allocated so that an unsupported type
// never leaves a half written struct behind.
type schemaExporter struct {
	format, name string

	extraMeta arrow.Metadata
	metadata  []byte
	flags     int64
	children  []schemaExporter
	dict      *schemaExporter
}

func (exp *schemaExporter) handleExtension(dt arrow.DataType) arrow.DataType {
	if dt.ID() != arrow.EXTENSION {
		return dt
	}

	ext := dt.(arrow.ExtensionType)
	exp.extraMeta = arrow.NewMetadata([]string{ipc.ExtensionTypeKeyName, ipc.ExtensionMetadataKeyName}, []string{ext.ExtensionName(), ext.Serialize()})
	return ext.StorageType()
}

func (exp *schemaExporter) exportMeta(m *arrow.Metadata) {
	var (
		finalKeys   []string
		finalValues []string
	)

	if m != nil {
		finalKeys = append(finalKeys, m.Keys()...)
		finalValues = append(finalValues, m.Values()...)
	}

	for i, k := range exp.extraMeta.Keys() {
		if m != nil && m.FindKey(k) != -1 {
			continue
		}
		finalKeys = append(finalKeys, k)
		finalValues = append(finalValues, exp.extraMeta.Values()[i])
	}
	exp.metadata = encodeCMetadata(finalKeys, finalValues)
}

func (exp *schemaExporter) export(field arrow.Field) error {
	exp.name = field.Name
	if field.Nullable {
		exp.flags |= flagNullable
	}

	dt := exp.handleExtension(field.Type)
	format, err := exportFormat(dt)
	if err != nil {
		return err
	}
	exp.format = format

	switch dt := dt.(type) {
	case *arrow.DictionaryType:
		if dt.Ordered {
			exp.flags |= flagDictionaryOrdered
		}
		exp.dict = &schemaExporter{}
		if err := exp.dict.export(arrow.Field{Type: dt.ValueType, Nullable: true}); err != nil {
			return err
		}
	case *arrow.MapType:
		if dt.KeysSorted {
			exp.flags |= flagMapKeysSorted
		}
	}

	// children follow the type: list items are "item", map entries
	// "entries" with "key" and "value", struct and union members keep
	// their own names.
	if nt, ok := dt.(arrow.NestedType); ok {
		fields := nt.Fields()
		exp.children = make([]schemaExporter, len(fields))
		for i, f := range fields {
			if err := exp.children[i].export(f); err != nil {
				return err
			}
		}
	}

	exp.exportMeta(&field.Metadata)
	return nil
}

// finish writes the exporter into out. The release callback is installed
// first, so on error out can be released to free whatever was written.
func (exp *schemaExporter) finish(out *CArrowSchema) error {
	C.ArrowSchemaMarkReleased(out)
	out.release = (*[0]byte)(C.goReleaseSchema)
	out.flags = C.int64_t(exp.flags)

	if out.format = cstring(exp.format); out.format == nil {
		return allocationError("schema format")
	}
	if out.name = cstring(exp.name); out.name == nil {
		return allocationError("schema name")
	}
	if len(exp.metadata) > 0 {
		if out.metadata = cbytes(exp.metadata); out.metadata == nil {
			return allocationError("schema metadata")
		}
	}

	if len(exp.children) > 0 {
		children := allocateArrowSchemaArr(len(exp.children))
		childPtrs := allocateArrowSchemaPtrArr(len(exp.children))
		if children == nil || childPtrs == nil {
			if children != nil {
				cfree(unsafe.Pointer(&children[0]))
			}
			if childPtrs != nil {
				cfree(unsafe.Pointer(&childPtrs[0]))
			}
			return allocationError("schema children")
		}

		for i := range children {
			childPtrs[i] = &children[i]
		}
		out.children = (**CArrowSchema)(unsafe.Pointer(&childPtrs[0]))
		out.n_children = C.int64_t(len(exp.children))

		for i := range exp.children {
			if err := exp.children[i].finish(&children[i]); err != nil {
				return err
			}
		}
	}

	if exp.dict != nil {
		dict := allocateArrowSchemaArr(1)
		if dict == nil {
			return allocationError("schema dictionary")
		}
		out.dictionary = &dict[0]
		if err := exp.dict.finish(out.dictionary); err != nil {
			return err
		}
	}
	return nil
}

func exportField(field arrow.Field, out *CArrowSchema) error {
	var exp schemaExporter
	if err := exp.export(field); err != nil {
		return err
	}

	if err := exp.finish(out); err != nil {
		C.ArrowSchemaRelease(out)
		return err
	}
	return nil
}

func storageType(dt arrow.DataType) arrow.DataType {
	if ext, ok := dt.(arrow.ExtensionType); ok {
		return ext.StorageType()
	}
	return dt
}

// binary and string views carry a trailing buffer of variadic buffer sizes
// in the C layout which the Go layout does not have.
func hasVariadicSizes(dt arrow.DataType) bool {
	switch storageType(dt).ID() {
	case arrow.BINARY_VIEW, arrow.STRING_VIEW:
		return true
	}
	return false
}

// exportedNullCount resolves an unknown null count, which slicing leaves
// behind, from the validity bitmap.
func exportedNullCount(data arrow.ArrayData) int {
	nulls := data.NullN()
	switch {
	case nulls >= 0:
		return nulls
	case storageType(data.DataType()).ID() == arrow.NULL:
		return data.Len()
	}

	buffers := data.Buffers()
	if len(buffers) == 0 || buffers[0] == nil || buffers[0].Len() == 0 {
		return 0
	}
	return data.Len() - bitutil.CountSetBits(buffers[0].Bytes(), data.Offset(), data.Len())
}

// exportedBuffers are the buffers of data in the C layout for its type.
func exportedBuffers(data arrow.ArrayData, nulls int) []bufferSlot {
	dt := storageType(data.DataType())

	buffers := data.Buffers()
	var n int
	switch dt.ID() {
	case arrow.NULL:
		return []bufferSlot{{mayBeNull: true}}
	case arrow.RUN_END_ENCODED:
		return nil
	case arrow.SPARSE_UNION:
		n = 2
	case arrow.DENSE_UNION:
		n = 3
	case arrow.BINARY_VIEW, arrow.STRING_VIEW:
		// the sizes slot is filled in by exportVariadicSizes
		n = len(buffers) + 1
	default:
		n = len(buffers)
	}

	slots := make([]bufferSlot, n)
	for i := range slots {
		if i < len(buffers) && buffers[i] != nil {
			slots[i].data = buffers[i].Bytes()
		}
		// slot 0 holds the validity bitmap, or nothing for unions
		slots[i].mayBeNull = i == 0
	}
	if n > 0 && nulls == 0 {
		slots[0].data = nil
	}
	return slots
}

type bufferSlot struct {
	data      []byte
	mayBeNull bool
}

func (s bufferSlot) pointer() unsafe.Pointer {
	switch {
	case len(s.data) > 0:
		return unsafe.Pointer(&s.data[0])
	case s.mayBeNull:
		return nil
	}
	return zeroRegion
}

// exportArray fills out from data, retaining data until out is released.
// The release callback is installed before anything else is allocated, so
// on error releasing out undoes every retain and allocation made so far.
func exportArray(data arrow.ArrayData, out *CArrowArray) error {
	C.ArrowArrayMarkReleased(out)

	data.Retain()
	h := cgo.NewHandle(data)
	hptr := createHandle(h)
	if hptr == nil {
		h.Delete()
		data.Release()
		return allocationError("array private data")
	}
	out.private_data = hptr
	out.release = (*[0]byte)(C.goReleaseArray)

	out.length = C.int64_t(data.Len())
	out.offset = C.int64_t(data.Offset())
	nulls := exportedNullCount(data)
	out.null_count = C.int64_t(nulls)

	if slots := exportedBuffers(data, nulls); len(slots) > 0 {
		buffers := allocateBufferPtrArr(len(slots))
		if buffers == nil {
			return allocationError("array buffers")
		}
		for i, s := range slots {
			buffers[i] = s.pointer()
		}
		out.buffers = (*unsafe.Pointer)(unsafe.Pointer(&buffers[0]))
		out.n_buffers = C.int64_t(len(slots))

		if hasVariadicSizes(data.DataType()) {
			if err := exportVariadicSizes(data, &buffers[len(buffers)-1]); err != nil {
				return err
			}
		}
	}

	if childData := data.Children(); len(childData) > 0 {
		children := allocateArrowArrayArr(len(childData))
		childPtrs := allocateArrowArrayPtrArr(len(childData))
		if children == nil || childPtrs == nil {
			if children != nil {
				cfree(unsafe.Pointer(&children[0]))
			}
			if childPtrs != nil {
				cfree(unsafe.Pointer(&childPtrs[0]))
			}
			return allocationError("array children")
		}

		for i := range children {
			childPtrs[i] = &children[i]
		}
		out.children = (**CArrowArray)(unsafe.Pointer(&childPtrs[0]))
		out.n_children = C.int64_t(len(childData))

		for i, c := range childData {
			if err := exportArray(c, &children[i]); err != nil {
				return err
			}
		}
	}

	if isDictionary(data.DataType()) {
		dictData := data.Dictionary()
		dict := allocateArrowArrayArr(1)
		if dict == nil {
			return allocationError("array dictionary")
		}
		out.dictionary = &dict[0]
		if err := exportArray(dictData, out.dictionary); err != nil {
			return err
		}
	}
	return nil
}

// exportVariadicSizes writes the int64 lengths of the variadic data buffers
// of a view array into C memory at slot. The slot keeps pointing at the zero
// region when there are none; anything else is freed on release.
func exportVariadicSizes(data arrow.ArrayData, slot *unsafe.Pointer) error {
	buffers := data.Buffers()
	if len(buffers) <= 2 {
		return nil
	}

	variadic := buffers[2:]
	p := callocBytes(len(variadic), arrow.Int64SizeBytes)
	if p == nil {
		return allocationError("variadic buffer sizes")
	}
	sizes := unsafe.Slice((*int64)(p), len(variadic))
	for i, b := range variadic {
		if b != nil {
			sizes[i] = int64(b.Len())
		}
	}
	*slot = p
	return nil
}

// Data.Dictionary returns a typed nil for other types, so look at the type
func isDictionary(dt arrow.DataType) bool {
	return storageType(dt).ID() == arrow.DICTIONARY
}

func exportArrayData(data arrow.ArrayData, out *CArrowArray) error {
	if err := exportArray(data, out); err != nil {
		C.ArrowArrayRelease(out)
		return xerrors.Errorf("exporting %s: %w", data.DataType(), err)
	}
	return nil
}
