package usqf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantOK  bool
		wantOp  Operator
		wantVal []string
	}{
		{"contains", "cnt:jane", true, OpContains, []string{"jane"}},
		{"equal uppercase operator", "EQ:5", true, OpEqual, []string{"5"}},
		{"notnull no value", "notnull", true, OpNotNull, nil},
		{"in multi value", "in:1,2,3", true, OpIn, []string{"1", "2", "3"}},
		{"unknown operator downgrades", "bogus:1", false, "", nil},
		{"empty string", "", false, "", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc, ok := ParseFilter(tc.raw)
			require.Equal(t, tc.wantOK, ok)

			if tc.wantOK {
				assert.Equal(t, tc.wantOp, fc.Operator)
				assert.Equal(t, tc.wantVal, fc.Values)
			}
		})
	}
}

func TestFilterCriteriaStringRoundTrip(t *testing.T) {
	cases := []string{"cnt:jane", "eq:5", "notnull", "in:1,2,3", "dbetween:2024-01-01,2024-02-01"}

	for _, raw := range cases {
		fc, ok := ParseFilter(raw)
		require.True(t, ok, raw)

		again, ok := ParseFilter(fc.String())
		require.True(t, ok)
		assert.Equal(t, fc, again)
	}
}

func TestParseDateFormats(t *testing.T) {
	cases := []string{
		"2024-03-15",
		"2024-03-15 10:30",
		"2024-03-15 10:30:00",
		"15/03/2024",
		"2024-03-15T10:30:00",
	}

	for _, raw := range cases {
		_, ok := ParseDate(raw)
		assert.True(t, ok, raw)
	}

	_, ok := ParseDate("not-a-date-at-all-!!")
	assert.False(t, ok)
}

func TestDateParseCacheClearsOnOverflow(t *testing.T) {
	c := newDateParseCache()

	for i := 0; i < dateCacheMaxEntries+5; i++ {
		raw := time.Now().AddDate(0, 0, i).Format("2006-01-02")
		_, ok := c.parse(raw)
		require.True(t, ok)
	}

	assert.LessOrEqual(t, len(c.entries), dateCacheMaxEntries)
}
