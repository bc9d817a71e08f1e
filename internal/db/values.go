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
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// ValueKind is the dynamic type of a backed up value
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindTime
	KindBytes
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// base64Key marks binary values in row files: {"$base64": "..."}
const base64Key = "$base64"

// Value is one column value of a backed up row. Numbers keep their JSON
// text so large integers and decimals survive unchanged.
type Value struct {
	Kind  ValueKind
	Text  string
	Bool  bool
	Time  time.Time
	Bytes []byte
}

// Row maps column names to values
type Row map[string]Value

func Null() Value                 { return Value{Kind: KindNull} }
func StringValue(s string) Value  { return Value{Kind: KindString, Text: s} }
func NumberValue(n string) Value  { return Value{Kind: KindNumber, Text: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t} }
func BytesValue(b []byte) Value   { return Value{Kind: KindBytes, Bytes: b} }

// ValueFromJSON converts a decoded JSON value. Numbers are expected as
// json.Number; nested objects and arrays become their JSON text.
func ValueFromJSON(v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return StringValue(x), nil
	case json.Number:
		return NumberValue(x.String()), nil
	case float64:
		return NumberValue(strconv.FormatFloat(x, 'f', -1, 64)), nil
	case bool:
		return BoolValue(x), nil
	case map[string]interface{}:
		if enc, ok := x[base64Key].(string); ok && len(x) == 1 {
			b, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return Value{}, fmt.Errorf("invalid base64 value: %w", err)
			}
			return BytesValue(b), nil
		}
		data, err := json.Marshal(x)
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(data)), nil
	case []interface{}:
		data, err := json.Marshal(x)
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(data)), nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON value of type %T", v)
	}
}

// RowFromJSON converts a decoded row object
func RowFromJSON(obj map[string]interface{}) (Row, error) {
	row := make(Row, len(obj))
	for k, v := range obj {
		val, err := ValueFromJSON(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", k, err)
		}
		row[k] = val
	}
	return row, nil
}

// typeClass groups column types by how values must be bound
type typeClass int

const (
	classText typeClass = iota
	classInteger
	classDecimal
	classFloat
	classBool
	classBinary
	classTemporal
)

func classify(col ColumnDescriptor) typeClass {
	t := strings.ToLower(strings.TrimSpace(col.DataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}

	switch t {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"int2", "int4", "int8", "serial", "smallserial", "bigserial", "year":
		return classInteger
	case "decimal", "numeric", "dec", "fixed":
		return classDecimal
	case "float", "double", "real", "float4", "float8", "double precision":
		return classFloat
	case "boolean", "bool":
		return classBool
	case "blob", "tinyblob", "mediumblob", "longblob", "binary", "varbinary", "bytea", "bit":
		return classBinary
	case "date", "datetime", "time", "timestamp", "timestamptz", "timetz",
		"timestamp without time zone", "timestamp with time zone",
		"time without time zone", "time with time zone":
		return classTemporal
	}

	// SQLite declared types follow affinity rules
	switch {
	case strings.Contains(t, "int"):
		return classInteger
	case strings.Contains(t, "char"), strings.Contains(t, "clob"), strings.Contains(t, "text"):
		return classText
	case strings.Contains(t, "blob"):
		return classBinary
	case strings.Contains(t, "real"), strings.Contains(t, "floa"), strings.Contains(t, "doub"):
		return classFloat
	case strings.HasPrefix(t, "date"), strings.HasPrefix(t, "time"):
		return classTemporal
	}
	return classText
}

// exportValue turns a scanned driver value into its JSON form for col
func exportValue(v interface{}, col ColumnDescriptor) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		// text protocol drivers hand back numbers as bytes too
		switch class := classify(col); {
		case class == classBinary || !utf8.Valid(x):
			return map[string]string{base64Key: base64.StdEncoding.EncodeToString(x)}
		case class == classInteger || class == classFloat:
			if f, err := strconv.ParseFloat(string(x), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return json.Number(x)
			}
		}
		return string(x)
	case time.Time:
		return formatTime(x, col)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'g', -1, 64)
		}
		return x
	case float32:
		return exportValue(float64(x), col)
	default:
		return v
	}
}

func formatTime(t time.Time, col ColumnDescriptor) string {
	dt := strings.ToLower(col.DataType)
	switch {
	case dt == "date":
		return t.Format("2006-01-02")
	case strings.Contains(dt, "with time zone") || dt == "timestamptz":
		return t.Format(time.RFC3339Nano)
	case t.Nanosecond() != 0:
		return t.Format("2006-01-02 15:04:05.999999")
	default:
		return t.Format("2006-01-02 15:04:05")
	}
}

// coerce validates v against col and returns the argument to bind
func coerce(v Value, col ColumnDescriptor) (interface{}, error) {
	class := classify(col)

	switch v.Kind {
	case KindNull:
		return nil, nil

	case KindBytes:
		return v.Bytes, nil

	case KindTime:
		return formatTime(v.Time, col), nil

	case KindBool:
		switch class {
		case classInteger, classDecimal, classFloat:
			if v.Bool {
				return int64(1), nil
			}
			return int64(0), nil
		case classText:
			return strconv.FormatBool(v.Bool), nil
		}
		return v.Bool, nil

	case KindNumber:
		switch class {
		case classInteger:
			return parseInteger(v.Text, col)
		case classFloat:
			f, err := strconv.ParseFloat(v.Text, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: invalid number %q", col.Name, v.Text)
			}
			return f, nil
		case classBool:
			f, err := strconv.ParseFloat(v.Text, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: invalid boolean %q", col.Name, v.Text)
			}
			return f != 0, nil
		}
		// decimals and text keep the exact digits
		return v.Text, nil

	case KindString:
		switch class {
		case classInteger:
			return parseInteger(strings.TrimSpace(v.Text), col)
		case classFloat, classDecimal:
			s := strings.TrimSpace(v.Text)
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("column %s: invalid number %q", col.Name, v.Text)
			}
			return s, nil
		case classBool:
			switch strings.ToLower(strings.TrimSpace(v.Text)) {
			case "1", "t", "true", "y", "yes", "on":
				return true, nil
			case "0", "f", "false", "n", "no", "off":
				return false, nil
			}
			return nil, fmt.Errorf("column %s: invalid boolean %q", col.Name, v.Text)
		case classBinary:
			return []byte(v.Text), nil
		}
		return v.Text, nil
	}

	return nil, fmt.Errorf("column %s: unsupported value kind %s", col.Name, v.Kind)
}

func parseInteger(s string, col ColumnDescriptor) (interface{}, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	// 3.0 is an integer; 3.5 is not
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), nil
	}
	return nil, fmt.Errorf("column %s: invalid integer %q", col.Name, s)
}
