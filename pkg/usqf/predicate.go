package usqf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// compilePredicate compiles one already-parsed FilterCriteria against a
// resolved, known-searchable path into SQL text plus the binds it needs.
// ok=false means "drop this predicate" — every failure here is a local
// recovery case from spec §7 (bad arity, unparseable value, type mismatch),
// never a hard validation failure: the field name itself was already
// confirmed known by the caller.
func (c *Composer) compilePredicate(desc *SearchDescriptor, path string, fc FilterCriteria) (compiled, bool) {
	if tmpl, ok := desc.SubqueryFields[path]; ok {
		return c.compileSubqueryPredicate(tmpl, path, fc)
	}

	field := desc.RootAlias + "." + path
	bindBase := "filter_" + sanitizePath(path)
	fieldType := desc.FieldType(path)

	switch fc.Operator {
	case OpNotNull:
		return compiled{text: field + " IS NOT NULL"}, true
	case OpIsNull:
		return compiled{text: field + " IS NULL"}, true

	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		return compileStringPredicate(field, bindBase, fc)

	case OpEqual, OpNotEqual:
		return compileEqualityPredicate(field, bindBase, fieldType, fc)

	case OpGreaterThan, OpGreaterOrEq, OpLessThan, OpLessOrEq:
		return compileComparisonPredicate(field, bindBase, fieldType, fc)

	case OpDateEqual, OpDateNotEqual, OpDateGreater, OpDateGreaterOrEq, OpDateLess, OpDateLessOrEq:
		return compileDatePredicate(field, bindBase, fc)

	case OpDateBetween:
		return compileDateBetweenPredicate(field, bindBase, fc)

	case OpIn:
		return compileInPredicate(field, bindBase, fc)

	default:
		return compiled{}, false
	}
}

func (c *Composer) compileSubqueryPredicate(tmpl SubqueryTemplate, path string, fc FilterCriteria) (compiled, bool) {
	if len(fc.Values) == 0 {
		return compiled{}, false
	}

	bindName := "filter_" + sanitizePath(path)

	return compiled{
		text:  tmpl.Build(bindName),
		binds: map[string]any{bindName: fc.Values[0]},
	}, true
}

func sanitizePath(path string) string {
	return strings.ReplaceAll(path, ".", "_")
}

func compileStringPredicate(field, bindBase string, fc FilterCriteria) (compiled, bool) {
	if len(fc.Values) == 0 {
		return compiled{}, false
	}

	value := fc.Values[0]
	binds := map[string]any{bindBase: value}

	var expr string

	switch fc.Operator {
	case OpContains:
		expr = fmt.Sprintf("LOWER(%s) LIKE LOWER(CONCAT('%%',:%s,'%%'))", field, bindBase)
	case OpNotContains:
		expr = fmt.Sprintf("LOWER(%s) NOT LIKE LOWER(CONCAT('%%',:%s,'%%'))", field, bindBase)
	case OpStartsWith:
		expr = fmt.Sprintf("LOWER(%s) LIKE LOWER(CONCAT(:%s,'%%'))", field, bindBase)
	case OpEndsWith:
		expr = fmt.Sprintf("LOWER(%s) LIKE LOWER(CONCAT('%%',:%s))", field, bindBase)
	}

	return compiled{text: expr, binds: binds}, true
}

// compileEqualityPredicate implements eq/ne. TEXT fields never need
// coercion; everything else is coerced to its logical type and dropped on
// failure, per spec §4.2's "coercion failure downgrades the predicate".
func compileEqualityPredicate(field, bindBase string, fieldType LogicalType, fc FilterCriteria) (compiled, bool) {
	if len(fc.Values) == 0 {
		return compiled{}, false
	}

	value, ok := coerce(fieldType, fc.Values[0])
	if !ok {
		return compiled{}, false
	}

	op := "="
	if fc.Operator == OpNotEqual {
		op = "<>"
	}

	return compiled{
		text:  fmt.Sprintf("%s %s :%s", field, op, bindBase),
		binds: map[string]any{bindBase: value},
	}, true
}

// compileComparisonPredicate implements gt/gte/lt/lte: always a typed
// coercion, no TEXT fallback (spec §4.2 ordering operators are not
// meaningful against raw text).
func compileComparisonPredicate(field, bindBase string, fieldType LogicalType, fc FilterCriteria) (compiled, bool) {
	if len(fc.Values) == 0 || fieldType == TypeText {
		return compiled{}, false
	}

	value, ok := coerce(fieldType, fc.Values[0])
	if !ok {
		return compiled{}, false
	}

	var op string

	switch fc.Operator {
	case OpGreaterThan:
		op = ">"
	case OpGreaterOrEq:
		op = ">="
	case OpLessThan:
		op = "<"
	case OpLessOrEq:
		op = "<="
	}

	return compiled{
		text:  fmt.Sprintf("%s %s :%s", field, op, bindBase),
		binds: map[string]any{bindBase: value},
	}, true
}

// compileDatePredicate implements deq/dne/dgt/dgte/dlt/dlte: parsed via
// ParseDate and compared date-only (spec §4.2).
func compileDatePredicate(field, bindBase string, fc FilterCriteria) (compiled, bool) {
	if len(fc.Values) == 0 {
		return compiled{}, false
	}

	t, ok := ParseDate(fc.Values[0])
	if !ok {
		return compiled{}, false
	}

	var op string

	switch fc.Operator {
	case OpDateEqual:
		op = "="
	case OpDateNotEqual:
		op = "<>"
	case OpDateGreater:
		op = ">"
	case OpDateGreaterOrEq:
		op = ">="
	case OpDateLess:
		op = "<"
	case OpDateLessOrEq:
		op = "<="
	}

	return compiled{
		text:  fmt.Sprintf("CAST(%s AS DATE) %s :%s", field, op, bindBase),
		binds: map[string]any{bindBase: DateOnly(t)},
	}, true
}

// compileDateBetweenPredicate requires exactly two comma-separated values;
// any other arity drops the predicate (spec §4.2).
func compileDateBetweenPredicate(field, bindBase string, fc FilterCriteria) (compiled, bool) {
	if len(fc.Values) != 2 {
		return compiled{}, false
	}

	start, ok := ParseDate(fc.Values[0])
	if !ok {
		return compiled{}, false
	}

	end, ok := ParseDate(fc.Values[1])
	if !ok {
		return compiled{}, false
	}

	startBind := bindBase + "_start"
	endBind := bindBase + "_end"

	return compiled{
		text: fmt.Sprintf("CAST(%s AS DATE) BETWEEN :%s AND :%s", field, startBind, endBind),
		binds: map[string]any{
			startBind: DateOnly(start),
			endBind:   DateOnly(end),
		},
	}, true
}

// compileInPredicate implements the `in` operator; an empty value list
// compiles to the literal false predicate `1=0` rather than invalid SQL
// (spec §4.2's "empty IN list" edge case).
func compileInPredicate(field, bindBase string, fc FilterCriteria) (compiled, bool) {
	if len(fc.Values) == 0 {
		return compiled{text: "1=0"}, true
	}

	binds := make(map[string]any, len(fc.Values))
	tokens := make([]string, 0, len(fc.Values))

	for i, v := range fc.Values {
		name := fmt.Sprintf("%s_%d", bindBase, i)
		binds[name] = v
		tokens = append(tokens, ":"+name)
	}

	return compiled{
		text:  fmt.Sprintf("%s IN (%s)", field, strings.Join(tokens, ",")),
		binds: binds,
	}, true
}

// coerce converts a raw string value to the Go value matching fieldType, for
// binding into a typed comparison. Failure (non-numeric string for a numeric
// field, etc.) reports ok=false so the caller drops the predicate.
func coerce(fieldType LogicalType, raw string) (any, bool) {
	switch fieldType {
	case TypeInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, false
		}

		return v, true

	case TypeLong:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false
		}

		return v, true

	case TypeDecimal:
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, false
		}

		return v, true

	case TypeBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, false
		}

		return v, true

	case TypeBoolAsInt:
		// the column is physically an integer (spec §6's isActive:eq:1
		// example), so the bound value must be 0/1, not a Go bool.
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, false
		}

		if v {
			return 1, true
		}

		return 0, true

	case TypeDate, TypeTimestamp:
		t, ok := ParseDate(raw)
		if !ok {
			return nil, false
		}

		return t, true

	case TypeUUID, TypeEnum, TypeText:
		return raw, true

	default:
		return raw, true
	}
}
