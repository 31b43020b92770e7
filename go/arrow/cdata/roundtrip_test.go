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
	"reflect"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory/mallocator"
	"github.com/stretchr/testify/suite"
)

// taggedType is a test extension type over four byte values.
type taggedType struct {
	arrow.ExtensionBase
	tag string
}

func newTaggedType(tag string) *taggedType {
	return &taggedType{ExtensionBase: arrow.ExtensionBase{Storage: &arrow.FixedSizeBinaryType{ByteWidth: 4}}, tag: tag}
}

func (*taggedType) ArrayType() reflect.Type { return reflect.TypeOf(taggedArray{}) }
func (*taggedType) ExtensionName() string   { return "cdata.tagged" }
func (t *taggedType) Serialize() string     { return t.tag }

func (*taggedType) Deserialize(storage arrow.DataType, data string) (arrow.ExtensionType, error) {
	if !arrow.TypeEqual(storage, &arrow.FixedSizeBinaryType{ByteWidth: 4}) {
		return nil, ErrFormat
	}
	return newTaggedType(data), nil
}

func (t *taggedType) ExtensionEquals(other arrow.ExtensionType) bool {
	o, ok := other.(*taggedType)
	return ok && o.tag == t.tag
}

type taggedArray struct {
	array.ExtensionArrayBase
}

type RoundTripSuite struct {
	suite.Suite

	mem   *mallocator.Mallocator
	cbase int
}

func (s *RoundTripSuite) SetupTest() {
	s.mem = mallocator.NewMallocator()
	s.cbase = cAllocated()
}

func (s *RoundTripSuite) TearDownTest() {
	s.mem.AssertSize(s.T(), 0)
	s.Equal(s.cbase, cAllocated(), "C memory leaked")
}

func (s *RoundTripSuite) fromJSON(dt arrow.DataType, data string) arrow.Array {
	arr, _, err := array.FromJSON(s.mem, dt, strings.NewReader(data))
	s.Require().NoError(err)
	return arr
}

// check exports arr with its schema, imports both back and compares.
func (s *RoundTripSuite) check(arr arrow.Array) {
	var (
		out CArrowArray
		sc  CArrowSchema
	)
	s.Require().NoError(ExportArrowArray(arr, &out, &sc))

	field, got, err := ImportCArray(&out, &sc)
	s.Require().NoError(err)
	defer got.Release()

	s.True(ArrayIsReleased(&out))
	s.True(SchemaIsReleased(&sc))
	s.Truef(arrow.TypeEqual(arr.DataType(), field.Type), "expected %s, got %s", arr.DataType(), field.Type)
	s.Truef(array.Equal(arr, got), "expected %s, got %s", arr, got)
}

func (s *RoundTripSuite) TestJSONTypes() {
	tests := []struct {
		dt   arrow.DataType
		data string
	}{
		{arrow.FixedWidthTypes.Boolean, `[true, null, false]`},
		{arrow.PrimitiveTypes.Int8, `[1, 2, null, -3]`},
		{arrow.PrimitiveTypes.Uint8, `[0, 255]`},
		{arrow.PrimitiveTypes.Int16, `[-300, null]`},
		{arrow.PrimitiveTypes.Uint16, `[65535]`},
		{arrow.PrimitiveTypes.Int32, `[]`},
		{arrow.PrimitiveTypes.Uint32, `[1, null, 3]`},
		{arrow.PrimitiveTypes.Int64, `[1, 2]`},
		{arrow.PrimitiveTypes.Uint64, `[null]`},
		{arrow.FixedWidthTypes.Float16, `[1.5, null]`},
		{arrow.PrimitiveTypes.Float32, `[1.5, -2.25]`},
		{arrow.PrimitiveTypes.Float64, `[null, 3.125]`},
		{arrow.BinaryTypes.String, `["a", null, "", "dddd"]`},
		{arrow.BinaryTypes.LargeString, `["a", "bb"]`},
		{arrow.BinaryTypes.Binary, `["AAE=", null]`},
		{arrow.BinaryTypes.LargeBinary, `[""]`},
		{arrow.BinaryTypes.StringView, `["a", null, "", "longer than the inline prefix"]`},
		{arrow.BinaryTypes.BinaryView, `["AAE=", null, "bG9uZ2VyIHRoYW4gdGhlIGlubGluZSBwcmVmaXg="]`},
		{&arrow.Decimal32Type{Precision: 9, Scale: 2}, `["1.23", null, "-4.50"]`},
		{&arrow.Decimal64Type{Precision: 18, Scale: 3}, `["123456.789", null]`},
		{&arrow.FixedSizeBinaryType{ByteWidth: 3}, `["YWJj", null]`},
		{arrow.FixedWidthTypes.Date32, `[1, null]`},
		{arrow.FixedWidthTypes.Date64, `[86400000]`},
		{arrow.FixedWidthTypes.Time32ms, `[1000]`},
		{arrow.FixedWidthTypes.Time64ns, `[1, 2]`},
		{&arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, `[0, null]`},
		{arrow.FixedWidthTypes.Duration_s, `[60]`},
		{arrow.FixedWidthTypes.MonthInterval, `[{"months": 1}, null, {"months": 2}]`},
		{arrow.ListOf(arrow.PrimitiveTypes.Int8), `[[1, 2], [3, null], null, []]`},
		{arrow.LargeListOf(arrow.BinaryTypes.String), `[["a"], null]`},
		{arrow.ListViewOf(arrow.PrimitiveTypes.Int8), `[[1, 2], null, [], [3]]`},
		{arrow.LargeListViewOf(arrow.BinaryTypes.String), `[["a", "b"], null]`},
		{arrow.FixedSizeListOf(2, arrow.PrimitiveTypes.Int16), `[[1, 2], null, [3, 4]]`},
		{arrow.StructOf(
			arrow.Field{Name: "a", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
			arrow.Field{Name: "b", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		), `[{"a": 1, "b": ["x"]}, null, {"a": null, "b": []}]`},
		{arrow.MapOf(arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int64),
			`[[{"key": "a", "value": 1}], null, []]`},
		{arrow.Null, `[null, null]`},
	}

	for _, tt := range tests {
		s.Run(tt.dt.String(), func() {
			arr := s.fromJSON(tt.dt, tt.data)
			defer arr.Release()
			s.check(arr)
		})
	}
}

func (s *RoundTripSuite) TestSliced() {
	for _, dt := range []arrow.DataType{
		arrow.PrimitiveTypes.Int64,
		arrow.BinaryTypes.String,
		arrow.BinaryTypes.StringView,
		arrow.ListOf(arrow.PrimitiveTypes.Int8),
	} {
		s.Run(dt.String(), func() {
			var data string
			switch dt.ID() {
			case arrow.INT64:
				data = `[1, null, 3, 4, 5]`
			case arrow.STRING, arrow.STRING_VIEW:
				data = `["a", null, "ccc", "dd", "e"]`
			default:
				data = `[[1], null, [3, 4], [], [5]]`
			}

			arr := s.fromJSON(dt, data)
			defer arr.Release()
			sliced := array.NewSlice(arr, 1, 4)
			defer sliced.Release()
			s.check(sliced)
		})
	}
}

func (s *RoundTripSuite) TestDecimal() {
	bldr := array.NewDecimal128Builder(s.mem, &arrow.Decimal128Type{Precision: 16, Scale: 4})
	defer bldr.Release()
	bldr.Append(decimal128.FromI64(1234567))
	bldr.AppendNull()
	bldr.Append(decimal128.FromI64(-120000))

	arr := bldr.NewArray()
	defer arr.Release()
	s.check(arr)
}

func (s *RoundTripSuite) TestDictionary() {
	indices := s.fromJSON(arrow.PrimitiveTypes.Uint16, `[0, 1, null, 1, 0]`)
	defer indices.Release()
	dict := s.fromJSON(arrow.ListOf(arrow.PrimitiveTypes.Int8), `[[1], [2, 3]]`)
	defer dict.Release()

	arr := array.NewDictionaryArray(&arrow.DictionaryType{
		IndexType: arrow.PrimitiveTypes.Uint16, ValueType: dict.DataType()}, indices, dict)
	defer arr.Release()
	s.check(arr)
}

func (s *RoundTripSuite) TestUnions() {
	typeIDs := s.fromJSON(arrow.PrimitiveTypes.Int8, `[2, 2, 5, 2]`)
	defer typeIDs.Release()
	ints := s.fromJSON(arrow.PrimitiveTypes.Int32, `[1, null, 3, 4]`)
	defer ints.Release()
	strs := s.fromJSON(arrow.BinaryTypes.String, `["a", "b", null, "d"]`)
	defer strs.Release()

	sparse, err := array.NewSparseUnionFromArraysWithFieldCodes(typeIDs, []arrow.Array{ints, strs},
		[]string{"i", "s"}, []arrow.UnionTypeCode{2, 5})
	s.Require().NoError(err)
	defer sparse.Release()
	s.check(sparse)

	offsets := s.fromJSON(arrow.PrimitiveTypes.Int32, `[0, 1, 0, 2]`)
	defer offsets.Release()
	dense, err := array.NewDenseUnionFromArraysWithFieldCodes(typeIDs, offsets, []arrow.Array{ints, strs},
		[]string{"i", "s"}, []arrow.UnionTypeCode{2, 5})
	s.Require().NoError(err)
	defer dense.Release()
	s.check(dense)
}

func (s *RoundTripSuite) TestRunEndEncoded() {
	runEnds := s.fromJSON(arrow.PrimitiveTypes.Int32, `[2, 5, 6]`)
	defer runEnds.Release()
	values := s.fromJSON(arrow.BinaryTypes.String, `["a", null, "c"]`)
	defer values.Release()

	arr := array.NewRunEndEncodedArray(runEnds, values, 6, 0)
	defer arr.Release()
	s.check(arr)
}

func (s *RoundTripSuite) TestExtension() {
	typ := newTaggedType("v1")
	s.Require().NoError(arrow.RegisterExtensionType(typ))
	defer arrow.UnregisterExtensionType(typ.ExtensionName())

	storage := s.fromJSON(typ.StorageType(), `["AAECAw==", null]`)
	defer storage.Release()
	arr := array.NewExtensionArrayWithStorage(typ, storage)
	defer arr.Release()

	s.check(arr)
}

func (s *RoundTripSuite) TestUnregisteredExtensionKeepsStorage() {
	typ := newTaggedType("v2")
	storage := s.fromJSON(typ.StorageType(), `["AAECAw=="]`)
	defer storage.Release()
	arr := array.NewExtensionArrayWithStorage(typ, storage)
	defer arr.Release()

	var (
		out CArrowArray
		sc  CArrowSchema
	)
	s.Require().NoError(ExportArrowArray(arr, &out, &sc))
	field, got, err := ImportCArray(&out, &sc)
	s.Require().NoError(err)
	defer got.Release()

	s.True(arrow.TypeEqual(typ.StorageType(), field.Type))
	name, _ := field.Metadata.GetValue(ipc.ExtensionTypeKeyName)
	s.Equal("cdata.tagged", name)
	serialized, _ := field.Metadata.GetValue(ipc.ExtensionMetadataKeyName)
	s.Equal("v2", serialized)
	s.True(array.Equal(storage, got))
}

func (s *RoundTripSuite) TestRecordBatch() {
	md := arrow.NewMetadata([]string{"origin"}, []string{"test"})
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "ints", Type: arrow.PrimitiveTypes.Int32, Nullable: true,
			Metadata: arrow.NewMetadata([]string{"k"}, []string{"v"})},
		{Name: "strs", Type: arrow.BinaryTypes.String},
	}, &md)

	ints := s.fromJSON(arrow.PrimitiveTypes.Int32, `[1, null, 3]`)
	defer ints.Release()
	strs := s.fromJSON(arrow.BinaryTypes.String, `["a", "b", "c"]`)
	defer strs.Release()
	rec := array.NewRecord(schema, []arrow.Array{ints, strs}, 3)
	defer rec.Release()

	var (
		out CArrowArray
		sc  CArrowSchema
	)
	s.Require().NoError(ExportArrowRecordBatch(rec, &out, &sc))
	got, err := ImportCRecordBatch(&out, &sc)
	s.Require().NoError(err)
	defer got.Release()

	s.True(got.Schema().Equal(schema))
	s.True(got.Schema().Metadata().Equal(md))
	s.True(array.RecordEqual(rec, got))
}

func (s *RoundTripSuite) TestSchema() {
	md := arrow.NewMetadata([]string{"a", "b"}, []string{"1", ""})
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "d", Type: &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String, Ordered: true}, Nullable: true},
		{Name: "m", Type: arrow.MapOf(arrow.PrimitiveTypes.Int8, arrow.PrimitiveTypes.Float32)},
		{Name: "u", Type: arrow.DenseUnionOf([]arrow.Field{{Name: "x", Type: arrow.PrimitiveTypes.Int8, Nullable: true}}, []arrow.UnionTypeCode{3})},
	}, &md)

	var sc CArrowSchema
	s.Require().NoError(ExportArrowSchema(schema, &sc))
	s.Equal("+s", schemaFormat(&sc))
	s.Equal(int64(0), schemaFlags(&sc))

	got, err := ImportCArrowSchema(&sc)
	s.Require().NoError(err)
	s.True(SchemaIsReleased(&sc))
	s.True(schema.Equal(got))
	s.True(md.Equal(got.Metadata()))
}

func (s *RoundTripSuite) TestNonStructSchema() {
	var sc CArrowSchema
	s.Require().NoError(ExportArrowField(arrow.Field{Name: "x", Type: arrow.PrimitiveTypes.Int8}, &sc))

	_, err := ImportCArrowSchema(&sc)
	s.ErrorIs(err, ErrStructure)
	s.True(SchemaIsReleased(&sc))
}

func (s *RoundTripSuite) TestEmptyUnionField() {
	for _, dt := range []arrow.DataType{arrow.SparseUnionOf(nil, nil), arrow.DenseUnionOf(nil, nil)} {
		s.Run(dt.String(), func() {
			var sc CArrowSchema
			s.Require().NoError(ExportArrowField(arrow.Field{Name: "u", Type: dt, Nullable: true}, &sc))
			s.Empty(schemaChildren(&sc))

			field, err := ImportCArrowField(&sc)
			s.Require().NoError(err)
			s.True(SchemaIsReleased(&sc))
			s.Truef(arrow.TypeEqual(dt, field.Type), "expected %s, got %s", dt, field.Type)
		})
	}
}

func (s *RoundTripSuite) TestImportWithType() {
	arr := s.fromJSON(arrow.BinaryTypes.String, `["x", null]`)
	defer arr.Release()

	var out CArrowArray
	s.Require().NoError(ExportArrowArray(arr, &out, nil))
	got, err := ImportCArrayWithType(&out, arrow.BinaryTypes.String)
	s.Require().NoError(err)
	defer got.Release()
	s.True(array.Equal(arr, got))

	// a type which does not match the layout is rejected and the
	// exported array is still released
	s.Require().NoError(ExportArrowArray(arr, &out, nil))
	_, err = ImportCArrayWithType(&out, arrow.PrimitiveTypes.Int32)
	s.ErrorIs(err, ErrStructure)
	s.True(ArrayIsReleased(&out))
}

func TestRoundTrip(t *testing.T) {
	suite.Run(t, new(RoundTripSuite))
}
