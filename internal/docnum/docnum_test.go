package docnum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "ADJ-20250101-001", Format("ADJ", "20250101", 1))
	require.Equal(t, "GRN-20250131-042", Format("GRN", "20250131", 42))
	require.Equal(t, "ADJ-20250101-999", Format("ADJ", "20250101", 999))
	require.Equal(t, "ADJ-20250101-1000", Format("ADJ", "20250101", 1000))
}

func TestRoundTrip(t *testing.T) {
	cases := []Number{
		{Prefix: "ADJ", DateKey: "20250101", Sequence: 1},
		{Prefix: "GRN", DateKey: "20241231", Sequence: 77},
		{Prefix: "OUT", DateKey: "20250630", Sequence: 999},
		{Prefix: "ADJ", DateKey: "20250101", Sequence: 1000},
		{Prefix: "X9", DateKey: "20250215", Sequence: 5},
	}
	for _, c := range cases {
		got, err := Parse(Format(c.Prefix, c.DateKey, c.Sequence))
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"ADJ",
		"ADJ-20250101",
		"ADJ-20250101-",
		"ADJ-20250101-01",
		"ADJ-2025010-001",
		"ADJ-202501011-001",
		"ADJ-20250101-abc",
		"adj-20250101-001",
		"9DJ-20250101-001",
		"-20250101-001",
		"ADJ-20250101-000",
		"ADJ-20250101-0100",
		"ADJ_20250101_001",
		"ADJ-20250101-001-extra",
	}
	for _, s := range bad {
		_, err := Parse(s)
		require.ErrorIs(t, err, ErrInvalidNumber, "input %q", s)
	}
}

func TestValidPrefix(t *testing.T) {
	require.True(t, ValidPrefix("ADJ"))
	require.True(t, ValidPrefix("A1"))
	require.False(t, ValidPrefix(""))
	require.False(t, ValidPrefix("1A"))
	require.False(t, ValidPrefix("adj"))
	require.False(t, ValidPrefix("A-B"))
}

func TestValidDateKey(t *testing.T) {
	require.True(t, ValidDateKey("20250101"))
	require.False(t, ValidDateKey("2025011"))
	require.False(t, ValidDateKey("202501011"))
	require.False(t, ValidDateKey("2025O101"))
}
