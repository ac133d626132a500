package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericDateRoundTrip(t *testing.T) {
	start := Date(2024, time.January, 1)
	for d := 0; d < 800; d += 7 {
		day := start.AddDate(0, 0, d)
		got, err := ParseNumericDate(NumericDate(day))
		require.NoError(t, err)
		assert.True(t, day.Equal(got), "%s round-tripped to %s", day, got)
	}
}

func TestParseNumericDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "06/10/2025", want: jun(10)},
		{in: "06-10-2025", want: jun(10)},
		{in: "6/9/2025", want: jun(9)},
		{in: " 06/10/2025 ", want: jun(10)},
		{in: "02/30/2025", wantErr: true},
		{in: "13/01/2025", wantErr: true},
		{in: "2025-06-10", wantErr: true},
		{in: "next", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNumericDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShortDate(t *testing.T) {
	assert.Equal(t, "Jun 10, 2025", ShortDate(jun(10)))
	assert.Equal(t, "Jan 2, 2026", ShortDate(Date(2026, time.January, 2)))

	got, err := ParseShortDate("jun 10, 2025")
	require.NoError(t, err)
	assert.Equal(t, jun(10), got)
}

func TestColumnDateCrossesMonth(t *testing.T) {
	assert.Equal(t, Date(2025, time.July, 1), ColumnDate(jun(29), 3, 5))
	assert.Equal(t, jun(28), ColumnDate(jun(29), 3, 2))
}

func TestParseCapacity(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"3", 3, true},
		{" 12 ", 12, true},
		{"3 out of 10", 310, true},
		{"A", 0, false},
		{"", 0, false},
		{"0", 0, true},
	}
	for _, tt := range tests {
		got, ok := ParseCapacity(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCriteriaWithResolvedDate(t *testing.T) {
	c := Criteria{Guests: 2, NextAvailable: true, SiteTypes: []string{"Tent"}}

	got := c.WithResolvedDate(time.Date(2025, time.June, 10, 15, 4, 0, 0, time.Local), jun(12))
	assert.False(t, got.NextAvailable)
	assert.Equal(t, jun(10), got.Start)
	assert.Equal(t, jun(12), got.End)
	assert.Equal(t, 2, got.Nights())

	got.SiteTypes[0] = "RV"
	assert.True(t, c.NextAvailable, "receiver must not change")
	assert.Equal(t, "Tent", c.SiteTypes[0])
}

func TestCriteriaValidate(t *testing.T) {
	assert.Error(t, Criteria{Guests: 0, NextAvailable: true}.Validate(KindCamping))
	assert.NoError(t, Criteria{Guests: 1, NextAvailable: true}.Validate(KindCamping))
	assert.Error(t, Criteria{Guests: 1}.Validate(KindPermit))
	assert.Error(t, Criteria{Guests: 1, Start: jun(12), End: jun(10)}.Validate(KindCamping))
	assert.NoError(t, Criteria{Guests: 1, Start: jun(10), End: jun(12)}.Validate(KindCamping))
}
