package usqf

import (
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
)

// Operator is one of the filter operators from the grammar in spec §4.2.
type Operator string

const (
	OpContains     Operator = "cnt"
	OpNotContains  Operator = "ncnt"
	OpStartsWith   Operator = "sw"
	OpEndsWith     Operator = "ew"
	OpEqual        Operator = "eq"
	OpNotEqual     Operator = "ne"
	OpGreaterThan  Operator = "gt"
	OpGreaterOrEq  Operator = "gte"
	OpLessThan     Operator = "lt"
	OpLessOrEq     Operator = "lte"
	OpDateEqual    Operator = "deq"
	OpDateNotEqual Operator = "dne"
	OpDateGreater  Operator = "dgt"
	OpDateGreaterOrEq Operator = "dgte"
	OpDateLess     Operator = "dlt"
	OpDateLessOrEq Operator = "dlte"
	OpDateBetween  Operator = "dbetween"
	OpIn           Operator = "in"
	OpNotNull      Operator = "notnull"
	OpIsNull       Operator = "isnull"
)

var knownOperators = map[Operator]bool{
	OpContains: true, OpNotContains: true, OpStartsWith: true, OpEndsWith: true,
	OpEqual: true, OpNotEqual: true,
	OpGreaterThan: true, OpGreaterOrEq: true, OpLessThan: true, OpLessOrEq: true,
	OpDateEqual: true, OpDateNotEqual: true, OpDateGreater: true, OpDateGreaterOrEq: true,
	OpDateLess: true, OpDateLessOrEq: true, OpDateBetween: true,
	OpIn: true, OpNotNull: true, OpIsNull: true,
}

// FilterCriteria is the parsed shape of one column filter, spec §3.
type FilterCriteria struct {
	Operator Operator
	Values   []string
}

// String reconstructs the `operator[:value[,value...]]` form, so that
// ParseFilter(fc.String()) round-trips to an equal FilterCriteria for every
// syntactically valid filter (spec §8's round-trip property).
func (fc FilterCriteria) String() string {
	op := strings.ToLower(string(fc.Operator))
	if len(fc.Values) == 0 {
		return op
	}

	return op + ":" + strings.Join(fc.Values, ",")
}

// ParseFilter parses a raw filter string per spec §4.2. An unknown operator
// is reported via ok=false so the caller can downgrade (drop the predicate,
// log a warning) rather than hard-fail the whole request — spec §7 treats
// "unknown operator" as local recovery, not a validation error.
func ParseFilter(raw string) (FilterCriteria, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FilterCriteria{}, false
	}

	opPart := raw
	valuePart := ""

	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		opPart = raw[:idx]
		valuePart = raw[idx+1:]
	}

	op := Operator(strings.ToLower(opPart))
	if !knownOperators[op] {
		return FilterCriteria{}, false
	}

	var values []string
	if valuePart != "" {
		for _, v := range strings.Split(valuePart, ",") {
			values = append(values, v)
		}
	}

	return FilterCriteria{Operator: op, Values: values}, true
}

// dateFormats are tried in order before falling back to dateparse.ParseAny,
// matching spec §4.2's declared format list.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

const dateCacheMaxEntries = 1000

// dateParseCache is the bounded, concurrent-safe cache from spec §5: on
// overflow the entire cache is cleared and the new entry inserted.
type dateParseCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newDateParseCache() *dateParseCache {
	return &dateParseCache{entries: make(map[string]time.Time)}
}

func (c *dateParseCache) parse(raw string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.entries[raw]; ok {
		return t, true
	}

	t, ok := parseDateUncached(raw)
	if !ok {
		return time.Time{}, false
	}

	if len(c.entries) >= dateCacheMaxEntries {
		c.entries = make(map[string]time.Time)
	}

	c.entries[raw] = t

	return t, true
}

func parseDateUncached(raw string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}

	if t, err := dateparse.ParseAny(raw); err == nil {
		return t, true
	}

	return time.Time{}, false
}

var globalDateCache = newDateParseCache()

// ParseDate parses raw using the declared format list (then the araddon/
// dateparse fallback), through the bounded process-wide cache.
func ParseDate(raw string) (time.Time, bool) {
	return globalDateCache.parse(raw)
}

// DateOnly normalizes t to 00:00:00 UTC on the same calendar day, per spec
// §4.2's "date operators compare date-only" rule.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
