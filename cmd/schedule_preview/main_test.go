package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPrintsKarachiMonth(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{
		"-tz", "Asia/Karachi", "-days", "1,3", "-time", "18:00",
		"-from", "2024-03-01", "-to", "2024-03-30", "-cap", "8",
	}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 9)
	assert.Contains(t, lines[0], "Mon 2024-03-04 18:00  19:00  (2024-03-04 13:00 UTC)")
	assert.Equal(t, "total: 8", lines[8])
}

func TestRunRejectsBadInput(t *testing.T) {
	for _, args := range [][]string{
		{"-days", "", "-time", "18:00", "-from", "2024-03-01", "-to", "2024-03-02"},
		{"-days", "x", "-time", "18:00", "-from", "2024-03-01", "-to", "2024-03-02"},
		{"-days", "1", "-time", "18:00", "-from", "01.03.2024", "-to", "2024-03-02"},
		{"-days", "9", "-time", "18:00", "-from", "2024-03-01", "-to", "2024-03-02"},
	} {
		assert.Error(t, run(args, &bytes.Buffer{}), args)
	}
}
