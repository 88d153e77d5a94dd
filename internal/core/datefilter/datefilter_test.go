package datefilter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 4, 10, 15, 30, 0, 0, time.UTC)

func TestParseLayouts(t *testing.T) {
	got, err := Parse("2025-04-01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = Parse("2025-04-01T08:15:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Hour())
}

func TestParseNaturalLanguage(t *testing.T) {
	got, err := Parse("yesterday", now)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Day())

	got, err = Parse("3-days-ago", now)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Day())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("", now)
	assert.Error(t, err)
	_, err = Parse("zzz", now)
	assert.Error(t, err)
}

func TestParseQuery(t *testing.T) {
	f := ParseQuery("hikers since:2025-04-01 before:2025-04-05 trip", now)
	assert.Equal(t, "hikers trip", f.Query)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), f.Since)
	assert.Equal(t, time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC), f.Before)

	assert.True(t, f.Match(time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC)))
	assert.False(t, f.Match(time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC)))
	assert.False(t, f.Match(time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)))
}

func TestParseQueryKeepsUnparsedTokens(t *testing.T) {
	f := ParseQuery("since:whenever http://x", now)
	assert.Equal(t, "since:whenever http://x", f.Query)
	assert.True(t, f.Since.IsZero())
}
