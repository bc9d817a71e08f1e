// Nukepave - nuke-and-pave backup and restore for relational databases
// Copyright (C) 2025 blubskye
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
//
// Source code: https://github.com/blubskye/nukepave

package db

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestValueFromJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   interface{}
		want Value
	}{
		{"null", nil, Null()},
		{"string", "héllo", StringValue("héllo")},
		{"big integer", json.Number("18446744073709551615"), NumberValue("18446744073709551615")},
		{"decimal", json.Number("12345.678901234567890"), NumberValue("12345.678901234567890")},
		{"bool", true, BoolValue(true)},
		{"base64", map[string]interface{}{"$base64": "AP8Q"}, BytesValue([]byte{0x00, 0xff, 0x10})},
		{"object", map[string]interface{}{"a": json.Number("1")}, StringValue(`{"a":1}`)},
		{"array", []interface{}{"x", json.Number("2")}, StringValue(`["x",2]`)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ValueFromJSON(tt.in)
			if err != nil {
				t.Fatalf("ValueFromJSON: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := ValueFromJSON(map[string]interface{}{"$base64": "!!"}); err == nil {
		t.Error("invalid base64 should fail")
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	intCol := ColumnDescriptor{Name: "n", DataType: "bigint"}
	floatCol := ColumnDescriptor{Name: "f", DataType: "double"}
	decCol := ColumnDescriptor{Name: "d", DataType: "decimal"}
	boolCol := ColumnDescriptor{Name: "b", DataType: "boolean"}
	textCol := ColumnDescriptor{Name: "s", DataType: "varchar"}
	blobCol := ColumnDescriptor{Name: "x", DataType: "blob"}
	dateCol := ColumnDescriptor{Name: "d", DataType: "date"}

	tests := []struct {
		name    string
		v       Value
		col     ColumnDescriptor
		want    interface{}
		wantErr bool
	}{
		{"null", Null(), intCol, nil, false},
		{"int", NumberValue("42"), intCol, int64(42), false},
		{"unsigned max", NumberValue("18446744073709551615"), intCol, uint64(math.MaxUint64), false},
		{"integral float", NumberValue("3.0"), intCol, int64(3), false},
		{"fractional into int", NumberValue("3.5"), intCol, nil, true},
		{"int from string", StringValue(" 7 "), intCol, int64(7), false},
		{"junk into int", StringValue("seven"), intCol, nil, true},
		{"float", NumberValue("1.5"), floatCol, 1.5, false},
		{"decimal keeps digits", NumberValue("0.10000000000000000001"), decCol, "0.10000000000000000001", false},
		{"decimal from string", StringValue("12.50"), decCol, "12.50", false},
		{"bad decimal", StringValue("12,50"), decCol, nil, true},
		{"bool true", BoolValue(true), boolCol, true, false},
		{"bool from number", NumberValue("0"), boolCol, false, false},
		{"bool from string", StringValue("yes"), boolCol, true, false},
		{"bad bool", StringValue("maybe"), boolCol, nil, true},
		{"bool into int", BoolValue(true), intCol, int64(1), false},
		{"bool into text", BoolValue(false), textCol, "false", false},
		{"number into text", NumberValue("10"), textCol, "10", false},
		{"bytes", BytesValue([]byte{1, 2}), blobCol, []byte{1, 2}, false},
		{"text into blob", StringValue("raw"), blobCol, []byte("raw"), false},
		{"time into date", TimeValue(time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)), dateCol, "2024-05-01", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := coerce(tt.v, tt.col)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dataType string
		want     typeClass
	}{
		{"int", classInteger},
		{"int8", classInteger},
		{"UNSIGNED BIG INT", classInteger},
		{"numeric", classDecimal},
		{"double precision", classFloat},
		{"REAL", classFloat},
		{"bytea", classBinary},
		{"BLOB", classBinary},
		{"timestamp with time zone", classTemporal},
		{"DATETIME", classTemporal},
		{"varchar(255)", classText},
		{"jsonb", classText},
		{"", classText},
	}
	for _, tt := range tests {
		if got := classify(ColumnDescriptor{DataType: tt.dataType}); got != tt.want {
			t.Errorf("classify(%q) = %d, want %d", tt.dataType, got, tt.want)
		}
	}
}

func TestExportValue(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   interface{}
		col  ColumnDescriptor
		want interface{}
	}{
		{"nil", nil, ColumnDescriptor{DataType: "int"}, nil},
		{"text bytes", []byte("abc"), ColumnDescriptor{DataType: "varchar"}, "abc"},
		{"numeric bytes", []byte("123"), ColumnDescriptor{DataType: "bigint"}, json.Number("123")},
		{"binary", []byte{0x00, 0xff}, ColumnDescriptor{DataType: "varbinary"}, map[string]string{"$base64": "AP8="}},
		{"invalid utf8 text", []byte{0xff, 0xfe}, ColumnDescriptor{DataType: "text"}, map[string]string{"$base64": "//4="}},
		{"datetime", ts, ColumnDescriptor{DataType: "datetime"}, "2024-05-01 10:00:00"},
		{"date", ts, ColumnDescriptor{DataType: "date"}, "2024-05-01"},
		{"timestamptz", ts, ColumnDescriptor{DataType: "timestamp with time zone"}, "2024-05-01T10:00:00Z"},
		{"nan", math.NaN(), ColumnDescriptor{DataType: "double"}, "NaN"},
		{"float", 1.25, ColumnDescriptor{DataType: "double"}, 1.25},
		{"int", int64(9), ColumnDescriptor{DataType: "int"}, int64(9)},
	}

	for _, tt := range tests {
		if got := exportValue(tt.in, tt.col); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: got %#v, want %#v", tt.name, got, tt.want)
		}
	}
}
