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

import (
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/xerrors"
)

// schema flags, these must match the ARROW_FLAG_* values in abi.h
const (
	flagDictionaryOrdered int64 = 1
	flagNullable          int64 = 2
	flagMapKeysSorted     int64 = 4
)

// Map from the defined strings to their corresponding arrow.DataType interface
// object instances, for types that don't require params.
var formatToSimpleType = map[string]arrow.DataType{
	"n":   arrow.Null,
	"b":   arrow.FixedWidthTypes.Boolean,
	"c":   arrow.PrimitiveTypes.Int8,
	"C":   arrow.PrimitiveTypes.Uint8,
	"s":   arrow.PrimitiveTypes.Int16,
	"S":   arrow.PrimitiveTypes.Uint16,
	"i":   arrow.PrimitiveTypes.Int32,
	"I":   arrow.PrimitiveTypes.Uint32,
	"l":   arrow.PrimitiveTypes.Int64,
	"L":   arrow.PrimitiveTypes.Uint64,
	"e":   arrow.FixedWidthTypes.Float16,
	"f":   arrow.PrimitiveTypes.Float32,
	"g":   arrow.PrimitiveTypes.Float64,
	"z":   arrow.BinaryTypes.Binary,
	"Z":   arrow.BinaryTypes.LargeBinary,
	"u":   arrow.BinaryTypes.String,
	"U":   arrow.BinaryTypes.LargeString,
	"vz":  arrow.BinaryTypes.BinaryView,
	"vu":  arrow.BinaryTypes.StringView,
	"tdD": arrow.FixedWidthTypes.Date32,
	"tdm": arrow.FixedWidthTypes.Date64,
	"tts": arrow.FixedWidthTypes.Time32s,
	"ttm": arrow.FixedWidthTypes.Time32ms,
	"ttu": arrow.FixedWidthTypes.Time64us,
	"ttn": arrow.FixedWidthTypes.Time64ns,
	"tDs": arrow.FixedWidthTypes.Duration_s,
	"tDm": arrow.FixedWidthTypes.Duration_ms,
	"tDu": arrow.FixedWidthTypes.Duration_us,
	"tDn": arrow.FixedWidthTypes.Duration_ns,
	"tiM": arrow.FixedWidthTypes.MonthInterval,
	"tiD": arrow.FixedWidthTypes.DayTimeInterval,
	"tin": arrow.FixedWidthTypes.MonthDayNanoInterval,
}

var timestampUnits = map[string]arrow.TimeUnit{
	"tss": arrow.Second,
	"tsm": arrow.Millisecond,
	"tsu": arrow.Microsecond,
	"tsn": arrow.Nanosecond,
}

type nestedKind int8

const (
	notNested nestedKind = iota
	nestedList
	nestedLargeList
	nestedListView
	nestedLargeListView
	nestedFixedSizeList
	nestedStruct
	nestedMap
	nestedSparseUnion
	nestedDenseUnion
	nestedRunEndEncoded
)

// formatSpec is a parsed format string. Types without children are fully
// resolved by parsing; nested types need their child fields before they
// can produce an arrow.DataType.
type formatSpec struct {
	format    string
	dt        arrow.DataType
	kind      nestedKind
	listSize  int32
	typeCodes []arrow.UnionTypeCode
}

func formatError(f, reason string) error {
	return xerrors.Errorf("%w: %q %s", ErrFormat, f, reason)
}

func parseInt(f, s string, bits int) (int64, error) {
	v, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return 0, formatError(f, "has a non-numeric parameter "+strconv.Quote(s))
	}
	return v, nil
}

// parseFormat strictly parses a format string. Anything that is not exactly
// one of the known codes with well-formed parameters is an ErrFormat.
func parseFormat(f string) (*formatSpec, error) {
	if dt, ok := formatToSimpleType[f]; ok {
		return &formatSpec{format: f, dt: dt}, nil
	}

	spec := &formatSpec{format: f}
	switch {
	case f == "":
		return nil, formatError(f, "is empty")
	case f == "+l":
		spec.kind = nestedList
	case f == "+L":
		spec.kind = nestedLargeList
	case f == "+vl":
		spec.kind = nestedListView
	case f == "+vL":
		spec.kind = nestedLargeListView
	case f == "+s":
		spec.kind = nestedStruct
	case f == "+m":
		spec.kind = nestedMap
	case f == "+r":
		spec.kind = nestedRunEndEncoded
	case strings.HasPrefix(f, "+w:"):
		n, err := parseInt(f, f[3:], 32)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, formatError(f, "has a negative list size")
		}
		spec.kind, spec.listSize = nestedFixedSizeList, int32(n)
	case strings.HasPrefix(f, "+us:"), strings.HasPrefix(f, "+ud:"):
		codes, err := parseTypeCodes(f, f[4:])
		if err != nil {
			return nil, err
		}
		spec.typeCodes = codes
		spec.kind = nestedSparseUnion
		if f[2] == 'd' {
			spec.kind = nestedDenseUnion
		}
	case strings.HasPrefix(f, "w:"):
		n, err := parseInt(f, f[2:], 32)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, formatError(f, "has a negative byte width")
		}
		spec.dt = &arrow.FixedSizeBinaryType{ByteWidth: int(n)}
	case strings.HasPrefix(f, "d:"):
		dt, err := parseDecimal(f, f[2:])
		if err != nil {
			return nil, err
		}
		spec.dt = dt
	case isTimestampFormat(f):
		spec.dt = &arrow.TimestampType{Unit: timestampUnits[f[:3]], TimeZone: f[4:]}
	default:
		return nil, formatError(f, "is not a known format")
	}
	return spec, nil
}

// timestamps are ts<unit>:<timezone>, the timezone may be empty
func isTimestampFormat(f string) bool {
	if len(f) < 4 || f[3] != ':' {
		return false
	}
	_, ok := timestampUnits[f[:3]]
	return ok
}

// decimal types are d:<precision>,<scale>[,<bitwidth>], 128 bits if left out
func parseDecimal(f, params string) (arrow.DataType, error) {
	props := strings.Split(params, ",")
	if len(props) != 2 && len(props) != 3 {
		return nil, formatError(f, "needs precision and scale")
	}

	precision, err := parseInt(f, props[0], 32)
	if err != nil {
		return nil, err
	}
	scale, err := parseInt(f, props[1], 32)
	if err != nil {
		return nil, err
	}

	bitWidth := int64(128)
	if len(props) == 3 {
		if bitWidth, err = parseInt(f, props[2], 32); err != nil {
			return nil, err
		}
	}

	switch bitWidth {
	case 32:
		if precision < 1 || precision > 9 {
			return nil, formatError(f, "has a precision outside [1, 9]")
		}
		return &arrow.Decimal32Type{Precision: int32(precision), Scale: int32(scale)}, nil
	case 64:
		if precision < 1 || precision > 18 {
			return nil, formatError(f, "has a precision outside [1, 18]")
		}
		return &arrow.Decimal64Type{Precision: int32(precision), Scale: int32(scale)}, nil
	case 128:
		if precision < 1 || precision > 38 {
			return nil, formatError(f, "has a precision outside [1, 38]")
		}
		return &arrow.Decimal128Type{Precision: int32(precision), Scale: int32(scale)}, nil
	case 256:
		if precision < 1 || precision > 76 {
			return nil, formatError(f, "has a precision outside [1, 76]")
		}
		return &arrow.Decimal256Type{Precision: int32(precision), Scale: int32(scale)}, nil
	}
	return nil, formatError(f, "has an unsupported decimal bit width")
}

// an empty code list is a union without members
func parseTypeCodes(f, params string) ([]arrow.UnionTypeCode, error) {
	if params == "" {
		return []arrow.UnionTypeCode{}, nil
	}

	strs := strings.Split(params, ",")
	codes := make([]arrow.UnionTypeCode, len(strs))
	var seen [int(arrow.MaxUnionTypeCode) + 1]bool
	for i, s := range strs {
		v, err := parseInt(f, s, 32)
		if err != nil {
			return nil, err
		}
		if v < 0 || v > int64(arrow.MaxUnionTypeCode) {
			return nil, formatError(f, "has a type code out of range")
		}
		if seen[v] {
			return nil, formatError(f, "repeats a type code")
		}
		seen[v] = true
		codes[i] = arrow.UnionTypeCode(v)
	}
	return codes, nil
}

// nChildren is the child count the format requires, or -1 when any
// number of children is allowed.
func (s *formatSpec) nChildren() int {
	switch s.kind {
	case notNested:
		return 0
	case nestedList, nestedLargeList, nestedListView, nestedLargeListView, nestedFixedSizeList, nestedMap:
		return 1
	case nestedRunEndEncoded:
		return 2
	case nestedSparseUnion, nestedDenseUnion:
		return len(s.typeCodes)
	}
	return -1
}

// dataType resolves the parsed format into a type given its already
// imported children and the flags of the node being imported.
func (s *formatSpec) dataType(children []arrow.Field, flags int64) (arrow.DataType, error) {
	if n := s.nChildren(); n >= 0 && n != len(children) {
		return nil, xerrors.Errorf("%w: format %q expects %d children, got %d",
			ErrStructure, s.format, n, len(children))
	}

	switch s.kind {
	case notNested:
		return s.dt, nil
	case nestedList:
		return arrow.ListOfField(children[0]), nil
	case nestedLargeList:
		return arrow.LargeListOfField(children[0]), nil
	case nestedListView:
		return arrow.ListViewOfField(children[0]), nil
	case nestedLargeListView:
		return arrow.LargeListViewOfField(children[0]), nil
	case nestedFixedSizeList:
		return arrow.FixedSizeListOfField(s.listSize, children[0]), nil
	case nestedStruct:
		return arrow.StructOf(children...), nil
	case nestedMap:
		// map type is a list of key/value structs
		st, ok := children[0].Type.(*arrow.StructType)
		if !ok || st.NumFields() != 2 {
			return nil, xerrors.Errorf("%w: map child must be a struct of two fields, got %s",
				ErrStructure, children[0].Type)
		}
		mt := arrow.MapOf(st.Field(0).Type, st.Field(1).Type)
		mt.SetItemNullable(st.Field(1).Nullable)
		mt.KeysSorted = flags&flagMapKeysSorted != 0
		return mt, nil
	case nestedSparseUnion:
		return arrow.SparseUnionOf(children, s.typeCodes), nil
	case nestedDenseUnion:
		return arrow.DenseUnionOf(children, s.typeCodes), nil
	case nestedRunEndEncoded:
		switch children[0].Type.ID() {
		case arrow.INT16, arrow.INT32, arrow.INT64:
		default:
			return nil, xerrors.Errorf("%w: run ends must be int16, int32 or int64, got %s",
				ErrStructure, children[0].Type)
		}
		return arrow.RunEndEncodedOf(children[0].Type, children[1].Type), nil
	}
	return nil, formatError(s.format, "is not a known format")
}

// exportFormat returns the format string for dt. Dictionary types export
// the format of their index type and extension types are expected to have
// been replaced by their storage type.
func exportFormat(dt arrow.DataType) (string, error) {
	switch dt := dt.(type) {
	case *arrow.NullType:
		return "n", nil
	case *arrow.BooleanType:
		return "b", nil
	case *arrow.Int8Type:
		return "c", nil
	case *arrow.Uint8Type:
		return "C", nil
	case *arrow.Int16Type:
		return "s", nil
	case *arrow.Uint16Type:
		return "S", nil
	case *arrow.Int32Type:
		return "i", nil
	case *arrow.Uint32Type:
		return "I", nil
	case *arrow.Int64Type:
		return "l", nil
	case *arrow.Uint64Type:
		return "L", nil
	case *arrow.Float16Type:
		return "e", nil
	case *arrow.Float32Type:
		return "f", nil
	case *arrow.Float64Type:
		return "g", nil
	case *arrow.FixedSizeBinaryType:
		return "w:" + strconv.Itoa(dt.ByteWidth), nil
	case *arrow.Decimal32Type:
		return decimalFormat(dt.Precision, dt.Scale) + ",32", nil
	case *arrow.Decimal64Type:
		return decimalFormat(dt.Precision, dt.Scale) + ",64", nil
	case *arrow.Decimal128Type:
		return decimalFormat(dt.Precision, dt.Scale), nil
	case *arrow.Decimal256Type:
		return decimalFormat(dt.Precision, dt.Scale) + ",256", nil
	case *arrow.BinaryType:
		return "z", nil
	case *arrow.LargeBinaryType:
		return "Z", nil
	case *arrow.StringType:
		return "u", nil
	case *arrow.LargeStringType:
		return "U", nil
	case *arrow.BinaryViewType:
		return "vz", nil
	case *arrow.StringViewType:
		return "vu", nil
	case *arrow.Date32Type:
		return "tdD", nil
	case *arrow.Date64Type:
		return "tdm", nil
	case *arrow.Time32Type:
		switch dt.Unit {
		case arrow.Second:
			return "tts", nil
		case arrow.Millisecond:
			return "ttm", nil
		}
		return "", xerrors.Errorf("%w: invalid time unit for time32: %s", ErrFormat, dt.Unit)
	case *arrow.Time64Type:
		switch dt.Unit {
		case arrow.Microsecond:
			return "ttu", nil
		case arrow.Nanosecond:
			return "ttn", nil
		}
		return "", xerrors.Errorf("%w: invalid time unit for time64: %s", ErrFormat, dt.Unit)
	case *arrow.TimestampType:
		var b strings.Builder
		switch dt.Unit {
		case arrow.Second:
			b.WriteString("tss:")
		case arrow.Millisecond:
			b.WriteString("tsm:")
		case arrow.Microsecond:
			b.WriteString("tsu:")
		case arrow.Nanosecond:
			b.WriteString("tsn:")
		default:
			return "", xerrors.Errorf("%w: invalid time unit for timestamp: %s", ErrFormat, dt.Unit)
		}
		b.WriteString(dt.TimeZone)
		return b.String(), nil
	case *arrow.DurationType:
		switch dt.Unit {
		case arrow.Second:
			return "tDs", nil
		case arrow.Millisecond:
			return "tDm", nil
		case arrow.Microsecond:
			return "tDu", nil
		case arrow.Nanosecond:
			return "tDn", nil
		}
		return "", xerrors.Errorf("%w: invalid time unit for duration: %s", ErrFormat, dt.Unit)
	case *arrow.MonthIntervalType:
		return "tiM", nil
	case *arrow.DayTimeIntervalType:
		return "tiD", nil
	case *arrow.MonthDayNanoIntervalType:
		return "tin", nil
	case *arrow.ListType:
		return "+l", nil
	case *arrow.LargeListType:
		return "+L", nil
	case *arrow.ListViewType:
		return "+vl", nil
	case *arrow.LargeListViewType:
		return "+vL", nil
	case *arrow.FixedSizeListType:
		return "+w:" + strconv.Itoa(int(dt.Len())), nil
	case *arrow.StructType:
		return "+s", nil
	case *arrow.MapType:
		return "+m", nil
	case *arrow.RunEndEncodedType:
		return "+r", nil
	case *arrow.SparseUnionType:
		return "+us:" + joinTypeCodes(dt.TypeCodes()), nil
	case *arrow.DenseUnionType:
		return "+ud:" + joinTypeCodes(dt.TypeCodes()), nil
	case *arrow.DictionaryType:
		if !arrow.IsInteger(dt.IndexType.ID()) {
			return "", xerrors.Errorf("%w: dictionary index type must be an integer, got %s", ErrDictionary, dt.IndexType)
		}
		return exportFormat(dt.IndexType)
	}
	return "", xerrors.Errorf("%w: unsupported data type for export: %s", ErrFormat, dt)
}

func decimalFormat(precision, scale int32) string {
	return "d:" + strconv.Itoa(int(precision)) + "," + strconv.Itoa(int(scale))
}

func joinTypeCodes(codes []arrow.UnionTypeCode) string {
	var b strings.Builder
	for i, c := range codes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(c)))
	}
	return b.String()
}
