package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClockOverride(t *testing.T) {
	now, err := clock("")
	require.NoError(t, err)
	require.Nil(t, now)

	now, err = clock("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, "2024-02-29", now().Format("2006-01-02"))

	_, err = clock("29/02/2024")
	require.Error(t, err)
}

func TestParseDay(t *testing.T) {
	n, err := parseDay(" 60 ")
	require.NoError(t, err)
	require.Equal(t, 60, n)

	for _, raw := range []string{"0", "61", "x"} {
		_, err := parseDay(raw)
		require.Error(t, err, raw)
	}
	_, err = parseIndex("-1")
	require.Error(t, err)
}

func TestBar(t *testing.T) {
	require.Equal(t, "##########", bar(100, 10))
	require.Equal(t, "#####.....", bar(50, 10))
	require.Equal(t, "..........", bar(-5, 10))
	require.Equal(t, "##########", bar(140, 10))
}
