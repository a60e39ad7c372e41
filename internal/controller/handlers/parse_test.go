package handlers

import (
	"testing"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text string
		name string
		args []string
	}{
		{"/verify 12", "verify", []string{"12"}},
		{"/Generate@tutorflow_bot  7 ", "generate", []string{"7"}},
		{"/help", "help", []string{}},
		{"hello", "", nil},
		{"", "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			name, args := splitCommand(tc.text)
			assert.Equal(t, tc.name, name)
			if tc.args == nil {
				assert.Nil(t, args)
			} else {
				assert.Equal(t, tc.args, append([]string{}, args...))
			}
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("15", "match_id")
	require.NoError(t, err)
	assert.Equal(t, int64(15), id)

	for _, bad := range []string{"0", "-3", "abc", ""} {
		_, err := parseID(bad, "match_id")
		assert.Error(t, err, bad)
	}
}

func TestParseDays(t *testing.T) {
	days, err := parseDays("mon,wed")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, days)

	days, err = parseDays("пн, 5")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, days)

	_, err = parseDays("7")
	assert.Error(t, err)
	_, err = parseDays("funday")
	assert.Error(t, err)
	_, err = parseDays(",")
	assert.Error(t, err)
}

func TestParsePattern(t *testing.T) {
	p, err := parsePattern([]string{"Asia/Karachi", "mon,wed", "18:00", "60"})
	require.NoError(t, err)
	assert.Equal(t, &model.SchedulePattern{Timezone: "Asia/Karachi", Days: []int{1, 3}, Time: "18:00", DurationMins: 60}, p)

	_, err = parsePattern([]string{"Asia/Karachi", "mon", "18:00"})
	assert.Error(t, err)
	_, err = parsePattern([]string{"Nowhere/City", "mon", "18:00", "60"})
	assert.Error(t, err)
	_, err = parsePattern([]string{"UTC", "mon", "25:00", "60"})
	assert.Error(t, err)
	_, err = parsePattern([]string{"UTC", "mon", "18:00", "hour"})
	assert.Error(t, err)
}

func TestParseLocalStart(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)

	start, err := parseLocalStart("2024-03-05", "18:30", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 5, 13, 30, 0, 0, time.UTC), start.UTC())

	_, err = parseLocalStart("05.03.2024", "18:30", loc)
	assert.Error(t, err)
	_, err = parseLocalStart("2024-03-05", "6pm", loc)
	assert.Error(t, err)
}

func TestParseSessionStatus(t *testing.T) {
	s, err := parseSessionStatus("DONE")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusDone, s)

	s, err = parseSessionStatus("student")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusNoShowStudent, s)

	s, err = parseSessionStatus("Rescheduled")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusRescheduled, s)

	s, err = parseSessionStatus("перенесено")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusRescheduled, s)

	_, err = parseSessionStatus("scheduled")
	assert.Error(t, err)
}
