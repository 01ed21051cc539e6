package activity

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSportType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    SportType
		wantErr bool
	}{
		{input: "running", want: Running},
		{input: "Running", want: Running},
		{input: " RUN ", want: Running},
		{input: "course", want: Running},
		{input: "Cyclisme", want: Cycling},
		{input: "ride", want: Cycling},
		{input: "natation", want: Swimming},
		{input: "SWIMMING", want: Swimming},
		{input: "rowing", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSportType(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    Activity
		want float64
	}{
		{
			name: "running pace",
			a:    Activity{Sport: Running, DistanceMeters: 5000, Duration: 25 * time.Minute},
			want: 5,
		},
		{
			name: "running zero distance",
			a:    Activity{Sport: Running, DistanceMeters: 0, Duration: 25 * time.Minute},
			want: 0,
		},
		{
			name: "running zero duration",
			a:    Activity{Sport: Running, DistanceMeters: 5000},
			want: 0,
		},
		{
			name: "cycling speed",
			a:    Activity{Sport: Cycling, DistanceMeters: 30000, Duration: time.Hour},
			want: 30,
		},
		{
			name: "cycling zero duration",
			a:    Activity{Sport: Cycling, DistanceMeters: 30000},
			want: 0,
		},
		{
			name: "cycling zero distance",
			a:    Activity{Sport: Cycling, Duration: time.Hour},
			want: 0,
		},
		{
			name: "swimming pace",
			a:    Activity{Sport: Swimming, DistanceMeters: 1000, Duration: 20 * time.Minute},
			want: 2,
		},
		{
			name: "legacy sport name",
			a:    Activity{Sport: "Natation", DistanceMeters: 400, Duration: 8 * time.Minute},
			want: 2,
		},
		{
			name: "unknown sport",
			a:    Activity{Sport: "rowing", DistanceMeters: 1000, Duration: 5 * time.Minute},
			want: 0,
		},
		{
			name: "negative distance",
			a:    Activity{Sport: Running, DistanceMeters: -5, Duration: 5 * time.Minute},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, Speed(tt.a), 1e-9)
		})
	}
}

func TestSafeValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Activity{DistanceMeters: math.NaN()}.SafeDistance())
	assert.Equal(t, 0.0, Activity{DistanceMeters: math.Inf(1)}.SafeDistance())
	assert.Equal(t, 0.0, Activity{DistanceMeters: -1}.SafeDistance())
	assert.Equal(t, 1200.0, Activity{DistanceMeters: 1200}.SafeDistance())

	assert.Equal(t, 0.0, Activity{Duration: -time.Minute}.SafeMinutes())
	assert.Equal(t, 42.0, Activity{Duration: 42 * time.Minute}.SafeMinutes())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Activity{
		UserID:         "u1",
		Date:           DayFromString("2024-03-04"),
		Sport:          Running,
		DistanceMeters: 5000,
		Duration:       30 * time.Minute,
	}
	require.NoError(t, valid.Validate())

	broken := []func(a *Activity){
		func(a *Activity) { a.Sport = "rowing" },
		func(a *Activity) { a.DistanceMeters = -1 },
		func(a *Activity) { a.DistanceMeters = math.NaN() },
		func(a *Activity) { a.Duration = -time.Second },
		func(a *Activity) { a.Date = DayFromString("yesterday") },
		func(a *Activity) { a.Date = Day{} },
		func(a *Activity) { a.UserID = " " },
	}
	for i, mutate := range broken {
		a := valid
		mutate(&a)
		assert.ErrorIs(t, a.Validate(), ErrInvalidArgument, "case %d", i)
	}
}

func TestDayParse(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		day    Day
		wantOK bool
	}{
		{name: "absent", day: Day{}},
		{name: "empty text", day: DayFromString("  ")},
		{name: "garbage", day: DayFromString("not-a-date")},
		{name: "impossible date", day: DayFromString("2024-02-31")},
		{name: "iso date", day: DayFromString("2024-03-06"), wantOK: true},
		{name: "rfc3339", day: DayFromString("2024-03-06T18:30:00+02:00"), wantOK: true},
		{name: "sqlite timestamp", day: DayFromString("2024-03-06 07:15:00"), wantOK: true},
		{name: "time value", day: DayOf(time.Date(2024, 3, 6, 23, 59, 0, 0, time.FixedZone("x", -5*3600))), wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tt.day.Parse()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, want.Equal(got), "got %v", got)
			}
		})
	}
}

func TestDaySortKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, MinDay, DayFromString("??").SortKey())
	assert.Equal(t, MinDay, Day{}.SortKey())
	assert.True(t, DayFromString("1970-01-01").SortKey().After(MinDay))
}

func TestDayScanAndValue(t *testing.T) {
	t.Parallel()

	var d Day
	require.NoError(t, d.Scan("2024-01-15"))
	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", v)

	require.NoError(t, d.Scan([]byte("garbage")))
	v, err = d.Value()
	require.NoError(t, err)
	assert.Equal(t, "garbage", v, "malformed text must round-trip unchanged")

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())
	v, err = d.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, d.Scan(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-01-15", d.String())

	assert.Error(t, d.Scan(42))
}

func TestDayJSON(t *testing.T) {
	t.Parallel()

	a := Activity{UserID: "u1", Date: DayFromString("2024-01-15"), Sport: Cycling}
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"date":"2024-01-15"`)

	var back Activity
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "2024-01-15", back.Date.String())

	require.NoError(t, json.Unmarshal([]byte(`{"date":null}`), &back))
	assert.True(t, back.Date.IsZero())
}

func TestActivityJSONDuration(t *testing.T) {
	t.Parallel()

	a := Activity{
		ID:             "a1",
		UserID:         "u1",
		Date:           DayFromString("2024-01-15"),
		Sport:          Running,
		DistanceMeters: 5000,
		Duration:       30*time.Minute + 500*time.Millisecond,
		Title:          "easy",
	}
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"duration_seconds":1800.5`)
	assert.NotContains(t, string(data), `"duration":`)
	assert.Contains(t, string(data), `"date":"2024-01-15"`)

	var back Activity
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, a.Duration, back.Duration)
	assert.Equal(t, a.Title, back.Title)
	assert.Equal(t, "2024-01-15", back.Date.String())

	// slices go through the same methods
	data, err = json.Marshal([]Activity{a})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"duration_seconds":1800.5`)
}
