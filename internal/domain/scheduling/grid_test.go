package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDailySlots_Default(t *testing.T) {
	slots := GenerateDailySlots(DefaultGridConfig())
	require.Len(t, slots, 70)

	tests := []struct {
		index int
		label string
	}{
		{0, "10:30 - 10:36"},
		{22, "12:42 - 12:48"},
		{23, "13:48 - 13:54"},
		{45, "16:00 - 16:06"},
		{46, "17:06 - 17:12"},
		{69, "19:24 - 19:30"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.label, slots[tt.index].Label, "slot %d", tt.index)
		assert.Equal(t, tt.index, slots[tt.index].Index)
	}
}

func TestGenerateDailySlots_Deterministic(t *testing.T) {
	a := GenerateDailySlots(DefaultGridConfig())
	b := GenerateDailySlots(DefaultGridConfig())
	assert.Equal(t, a, b)
}

func TestGenerateDailySlots_LabelsUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range GenerateDailySlots(DefaultGridConfig()) {
		assert.False(t, seen[s.Label], "duplicate label %s", s.Label)
		seen[s.Label] = true
	}
}

func TestGenerateDailySlots_NoBreaks(t *testing.T) {
	slots := GenerateDailySlots(GridConfig{Count: 3, SlotMinutes: 15, Start: NewClockTime(9, 0)})
	require.Len(t, slots, 3)
	assert.Equal(t, "09:00 - 09:15", slots[0].Label)
	assert.Equal(t, "09:30 - 09:45", slots[2].Label)
}

func TestNewGrid_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  GridConfig
	}{
		{"zero count", GridConfig{Count: 0, SlotMinutes: 6}},
		{"zero minutes", GridConfig{Count: 5, SlotMinutes: 0}},
		{"negative break", GridConfig{Count: 5, SlotMinutes: 6, Breaks: []Break{{AfterSlot: 1, Minutes: -5}}}},
		{"break out of range", GridConfig{Count: 5, SlotMinutes: 6, Breaks: []Break{{AfterSlot: 5, Minutes: 5}}}},
		{"past midnight", GridConfig{Count: 10, SlotMinutes: 30, Start: NewClockTime(20, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGrid(tt.cfg)
			assert.Error(t, err)
		})
	}
	assert.Panics(t, func() { MustNewGrid(GridConfig{}) })
}

func TestGrid_Lookup(t *testing.T) {
	g := MustNewGrid(DefaultGridConfig())
	assert.Equal(t, 70, g.Len())

	s, ok := g.Lookup("13:48 - 13:54")
	require.True(t, ok)
	assert.Equal(t, 23, s.Index)

	assert.False(t, g.Contains("12:48 - 12:54"))
}

func TestParseBreaks(t *testing.T) {
	b, err := ParseBreaks("23:60, 46:60")
	require.NoError(t, err)
	assert.Equal(t, []Break{{23, 60}, {46, 60}}, b)

	b, err = ParseBreaks("")
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = ParseBreaks("23-60")
	assert.Error(t, err)
}

func TestParseClockTime(t *testing.T) {
	c, err := ParseClockTime("10:30")
	require.NoError(t, err)
	assert.Equal(t, NewClockTime(10, 30), c)
	assert.Equal(t, "10:30", c.String())

	for _, bad := range []string{"1030", "24:00", "10:7", "ab:cd"} {
		_, err := ParseClockTime(bad)
		assert.Error(t, err, bad)
	}
}
