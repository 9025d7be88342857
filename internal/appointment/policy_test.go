package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldofdoors/doorbot/internal/config"
	"github.com/worldofdoors/doorbot/internal/flow"
)

var testNow = time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC) // a Tuesday morning

func testBotConfig() config.Bot {
	return config.Bot{
		OpenHour:         9,
		CloseHour:        18,
		SlotHours:        2,
		CancellationFee:  75,
		LateNoticePolicy: true,
	}
}

func TestHoursUntil(t *testing.T) {
	in30h := testNow.Add(30 * time.Hour).Format(time.RFC3339)
	assert.InDelta(t, 30, hoursUntil(testNow, in30h), 0.01)

	in2h := testNow.Add(2 * time.Hour).Format(time.RFC3339)
	assert.InDelta(t, 2, hoursUntil(testNow, in2h), 0.01)
}

func TestHoursUntil_UnparseableNeverTriggersFee(t *testing.T) {
	hours := hoursUntil(testNow, "whenever works")

	assert.Equal(t, float64(farFutureHours), hours)
	assert.False(t, withinLateNotice(testNow, "whenever works"))
}

func TestWithinLateNotice(t *testing.T) {
	assert.True(t, withinLateNotice(testNow, testNow.Add(5*time.Hour).Format(time.RFC3339)))
	assert.False(t, withinLateNotice(testNow, testNow.Add(48*time.Hour).Format(time.RFC3339)))
}

func TestParseClock(t *testing.T) {
	testCases := []struct {
		in         string
		wantHour   int
		wantMinute int
	}{
		{"2:00 PM", 14, 0},
		{"2:30 pm", 14, 30},
		{"10 AM", 10, 0},
		{"14:00", 14, 0},
		{"09:15", 9, 15},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			hour, minute, err := parseClock(tc.in)

			require.NoError(t, err)
			assert.Equal(t, tc.wantHour, hour)
			assert.Equal(t, tc.wantMinute, minute)
		})
	}

	_, _, err := parseClock("whenever")
	require.Error(t, err)
}

func TestWithinBusinessHours(t *testing.T) {
	f := New(nil, flow.NewStore(), NewAvailabilityCache(time.Minute), testBotConfig(), func() time.Time { return testNow })

	tuesday2pm := time.Date(2026, time.September, 1, 14, 0, 0, 0, time.UTC)
	assert.True(t, f.withinBusinessHours(tuesday2pm))

	tuesday7am := time.Date(2026, time.September, 1, 7, 0, 0, 0, time.UTC)
	assert.False(t, f.withinBusinessHours(tuesday7am), "before opening")

	tuesday6pm := time.Date(2026, time.September, 1, 18, 0, 0, 0, time.UTC)
	assert.False(t, f.withinBusinessHours(tuesday6pm), "closing hour itself is not bookable")

	sunday := time.Date(2026, time.September, 6, 11, 0, 0, 0, time.UTC)
	assert.False(t, f.withinBusinessHours(sunday), "closed on Sundays")
}
