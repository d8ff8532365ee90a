package metadata

import (
	"time"

	"github.com/smoogly/entity-builder/builderr"
)

// ColumnType converts values the driver produced inside row_to_json output
// into their domain form. Hydration must be idempotent: a value already in
// domain form passes through unchanged.
type ColumnType interface {
	Name() string
	Hydrate(v any) (any, error)
}

var (
	// Int is a 64-bit integer column.
	Int ColumnType = rawType{name: "int"}
	// Float is a double precision column.
	Float ColumnType = rawType{name: "float"}
	// Text is a character column.
	Text ColumnType = rawType{name: "text"}
	// Bool is a boolean column.
	Bool ColumnType = rawType{name: "bool"}
	// JSON is a json/jsonb column, returned as decoded JSON.
	JSON ColumnType = rawType{name: "json"}
	// Raw passes driver values through untouched.
	Raw ColumnType = rawType{name: "raw"}
	// Timestamp parses timestamp and timestamptz wire strings into time.Time.
	Timestamp ColumnType = timeType{name: "timestamp", layouts: timestampLayouts}
	// Date parses date wire strings into time.Time at midnight UTC.
	Date ColumnType = timeType{name: "date", layouts: dateLayouts}
)

type rawType struct{ name string }

func (t rawType) Name() string             { return t.name }
func (t rawType) Hydrate(v any) (any, error) { return v, nil }

// Layouts PostgreSQL emits through to_json/row_to_json for the two temporal
// families. Fractional seconds are optional on the wire.
var (
	timestampLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
	}
	dateLayouts = []string{"2006-01-02"}
)

type timeType struct {
	name    string
	layouts []string
}

func (t timeType) Name() string { return t.name }

func (t timeType) Hydrate(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return val, nil
	case string:
		for _, layout := range t.layouts {
			if parsed, err := time.Parse(layout, val); err == nil {
				return parsed, nil
			}
		}
		return nil, builderr.InvalidArgument("cannot parse %q as %s", val, t.name)
	default:
		return nil, builderr.InvalidArgument("cannot hydrate %T as %s", v, t.name)
	}
}
