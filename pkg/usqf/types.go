package usqf

import (
	"math/big"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LogicalType is one of the field types a descriptor can declare, per
// spec §3. It drives how a filter value is coerced and how a predicate is
// compiled (§4.2).
type LogicalType string

const (
	TypeText      LogicalType = "TEXT"
	TypeInt       LogicalType = "INT"
	TypeLong      LogicalType = "LONG"
	TypeDecimal   LogicalType = "DECIMAL"
	TypeBool      LogicalType = "BOOL"
	TypeBoolAsInt LogicalType = "BOOL_AS_INT"
	TypeDate      LogicalType = "DATE"
	TypeTimestamp LogicalType = "TIMESTAMP"
	TypeEnum      LogicalType = "ENUM"
	TypeUUID      LogicalType = "UUID"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	bigIntType  = reflect.TypeOf(big.Int{})
	bigFloatType = reflect.TypeOf(big.Float{})
)

// goTypeToLogical maps a Go field type to the logical type it represents,
// the leaf step of the one-time structural walk spec §4.4 describes.
func goTypeToLogical(t reflect.Type) (LogicalType, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch {
	case t == timeType:
		return TypeTimestamp, true
	case t == uuidType:
		return TypeUUID, true
	case t == decimalType, t == bigFloatType:
		return TypeDecimal, true
	case t == bigIntType:
		return TypeLong, true
	}

	switch t.Kind() {
	case reflect.String:
		return TypeText, true
	case reflect.Bool:
		return TypeBool, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return TypeInt, true
	case reflect.Int64, reflect.Uint64:
		return TypeLong, true
	case reflect.Float32, reflect.Float64:
		return TypeDecimal, true
	default:
		return "", false
	}
}

// isSafeType enforces the safe-type allow-list from spec §4.4: primitive/
// wrapper numerics, booleans, strings, date/time, UUID, big decimal/integer,
// common containers, and types in the declared entity's package. Anything
// else causes the path to resolve as inaccessible rather than let arbitrary
// reflection reach into unrelated types.
func isSafeType(t reflect.Type, entityPkgPath string) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t == timeType || t == uuidType || t == decimalType || t == bigIntType || t == bigFloatType {
		return true
	}

	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	case reflect.Struct:
		return t.PkgPath() == "" || t.PkgPath() == entityPkgPath
	default:
		return false
	}
}

// structFieldByPathSegment finds the exported struct field matching a dotted
// path segment, case-insensitively and honoring a `json` tag name if present
// (the entity's field graph is a plain Go struct, spec §3's "field graph
// reference").
func structFieldByPathSegment(t reflect.Type, segment string) (reflect.StructField, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		if tag, ok := f.Tag.Lookup("json"); ok {
			name := tag
			if idx := indexOf(tag, ','); idx >= 0 {
				name = tag[:idx]
			}

			if equalFold(name, segment) {
				return f, true
			}
		}

		if equalFold(f.Name, segment) {
			return f, true
		}
	}

	return reflect.StructField{}, false
}

func indexOf(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}

	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}

		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}

		if ca != cb {
			return false
		}
	}

	return true
}

// walkFieldGraph performs the one-time structural walk spec §4.4 requires
// when a path has no explicit FieldTypes entry: follow the dotted path
// across the entity's Go struct one segment at a time, enforcing the
// safe-type allow-list at every hop, and return the leaf logical type (and,
// for association segments, whether that segment is collection-valued).
func walkFieldGraph(entityType reflect.Type, path string) (logical LogicalType, segments []pathSegment, ok bool) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return "", nil, false
	}

	entityPkg := entityType.PkgPath()
	cur := entityType
	result := make([]pathSegment, 0, len(segs))

	for i, seg := range segs {
		field, found := structFieldByPathSegment(cur, seg)
		if !found {
			return "", nil, false
		}

		ft := field.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}

		if !isSafeType(ft, entityPkg) {
			return "", nil, false
		}

		collection := ft.Kind() == reflect.Slice || ft.Kind() == reflect.Array || ft.Kind() == reflect.Map
		result = append(result, pathSegment{name: seg, collection: collection})

		if i == len(segs)-1 {
			leafType := ft
			if collection {
				leafType = ft.Elem()
			}

			lt, ltOk := goTypeToLogical(leafType)
			if !ltOk {
				// A leaf that resolves to a struct (an association, not a
				// scalar) has no logical type of its own; callers treat
				// this as "path reaches an association", not an error.
				return "", result, true
			}

			return lt, result, true
		}

		cur = ft
	}

	return "", result, false
}

type pathSegment struct {
	name       string
	collection bool
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}

	var segs []string

	start := 0

	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}

	segs = append(segs, path[start:])

	return segs
}

func rootSegment(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i]
		}
	}

	return path
}
