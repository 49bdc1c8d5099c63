package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-09")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2025, Month: time.March, Day: 9}, d)
	assert.Equal(t, "2025-03-09", d.String())
	assert.Equal(t, "03-09", d.MonthDay())

	_, err = ParseDate("09-03-2025")
	assert.Error(t, err)
}

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 28, DaysIn(2025, time.February))
	assert.Equal(t, 31, DaysIn(2025, time.December))
	assert.Len(t, MonthDates(2025, time.April), 30)
}

func TestAddDays_CrossesMonthAndYear(t *testing.T) {
	assert.Equal(t, MustParseDate("2026-01-01"), MustParseDate("2025-12-31").AddDays(1))
	assert.Equal(t, MustParseDate("2024-02-29"), MustParseDate("2024-03-01").AddDays(-1))
}

func TestDate_JSON(t *testing.T) {
	type wrap struct {
		D Date `json:"d"`
	}
	b, err := json.Marshal(wrap{D: MustParseDate("2025-10-20")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-10-20"}`, string(b))

	var w wrap
	require.NoError(t, json.Unmarshal([]byte(`{"d":"2024-11-01"}`), &w))
	assert.Equal(t, MustParseDate("2024-11-01"), w.D)

	assert.Error(t, json.Unmarshal([]byte(`{"d":"not-a-date"}`), &w))
}
