package retention

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepoid/keepoid/internal/config"
	"github.com/keepoid/keepoid/internal/snapshot"
)

func TestPolicy_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		now    string
		want   []string
	}{
		{
			name:   "hourly on the hour",
			policy: Policy{Interval: time.Hour, Count: 3},
			now:    "2023-10-27T14:00:00",
			want:   []string{"2023-10-27T14:00:00", "2023-10-27T13:00:00", "2023-10-27T12:00:00"},
		},
		{
			name:   "hourly with half-hour anchor",
			policy: Policy{Interval: time.Hour, Count: 2, Anchor: config.TimeOfDay{Minute: 30}},
			now:    "2023-10-27T14:10:00",
			want:   []string{"2023-10-27T13:30:00", "2023-10-27T12:30:00"},
		},
		{
			name:   "daily before today's anchor",
			policy: Policy{Interval: 24 * time.Hour, Count: 2, Anchor: config.TimeOfDay{Hour: 3, Minute: 30}},
			now:    "2023-10-27T01:00:00",
			want:   []string{"2023-10-26T03:30:00", "2023-10-25T03:30:00"},
		},
		{
			name:   "daily after today's anchor",
			policy: Policy{Interval: 24 * time.Hour, Count: 1, Anchor: config.TimeOfDay{Hour: 3, Minute: 30}},
			now:    "2023-10-27T03:30:00",
			want:   []string{"2023-10-27T03:30:00"},
		},
		{
			name:   "interval not dividing a day",
			policy: Policy{Interval: 7 * time.Hour, Count: 2},
			now:    "2023-10-27T23:00:00",
			want:   []string{"2023-10-27T21:00:00", "2023-10-27T14:00:00"},
		},
		{
			name:   "two day interval",
			policy: Policy{Interval: 48 * time.Hour, Count: 2},
			now:    "2023-10-27T14:00:00",
			want:   []string{"2023-10-27T00:00:00", "2023-10-25T00:00:00"},
		},
		{
			name:   "cover window adds a slot",
			policy: Policy{Interval: 24 * time.Hour, Count: 1, CoverWindow: true},
			now:    "2023-10-24T12:00:00",
			want:   []string{"2023-10-24T00:00:00", "2023-10-23T00:00:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Boundaries(at(tt.now), time.UTC)
			want := make([]time.Time, len(tt.want))
			for i, w := range tt.want {
				want[i] = at(w)
			}
			assert.Equal(t, len(want), len(got))
			for i := range want {
				assert.True(t, want[i].Equal(got[i]), "boundary %d = %s, want %s", i, got[i], want[i])
			}
		})
	}
}

func TestPolicy_BoundariesRespectLocation(t *testing.T) {
	loc := time.FixedZone("plus2", 2*60*60)
	p := Policy{Interval: 24 * time.Hour, Count: 1}

	// 23:00 UTC is already 01:00 the next day at +02:00
	got := p.Boundaries(at("2023-10-26T23:00:00"), loc)
	assert.True(t, got[0].Equal(at("2023-10-26T22:00:00")), "got %s", got[0])
}

func TestPolicy_DailyBoundariesFollowCalendarDays(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// clocks went forward on 2023-03-12
	now := time.Date(2023, 3, 13, 6, 0, 0, 0, ny)
	got := Policy{Interval: 24 * time.Hour, Count: 3}.Boundaries(now, ny)

	want := []time.Time{
		time.Date(2023, 3, 13, 0, 0, 0, 0, ny),
		time.Date(2023, 3, 12, 0, 0, 0, 0, ny),
		time.Date(2023, 3, 11, 0, 0, 0, 0, ny),
	}
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "boundary %d = %s, want %s", i, got[i], want[i])
	}

	// and back on 2023-11-05
	now = time.Date(2023, 11, 6, 12, 0, 0, 0, ny)
	got = Policy{Interval: 48 * time.Hour, Count: 2}.Boundaries(now, ny)
	assert.True(t, time.Date(2023, 11, 6, 0, 0, 0, 0, ny).Equal(got[0]), "got %s", got[0])
	assert.True(t, time.Date(2023, 11, 4, 0, 0, 0, 0, ny).Equal(got[1]), "got %s", got[1])
}

func TestPolicy_SubDayBoundariesStayEvenlySpaced(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	now := time.Date(2023, 3, 12, 4, 0, 0, 0, ny)
	got := Policy{Interval: time.Hour, Count: 3}.Boundaries(now, ny)
	for i := 1; i < len(got); i++ {
		assert.Equal(t, time.Hour, got[i-1].Sub(got[i]))
	}
}

func TestPolicy_AppliesTo(t *testing.T) {
	global := Policy{Path: "pool"}
	assert.True(t, global.AppliesTo("pool"))
	assert.True(t, global.AppliesTo("pool/data"))
	assert.False(t, global.AppliesTo("poolside"))

	override := Policy{Path: "pool/data", PathOverride: true}
	assert.True(t, override.AppliesTo("pool/data"))
	assert.False(t, override.AppliesTo("pool/data/child"))
	assert.False(t, override.AppliesTo("pool"))
}

func TestPoliciesFrom(t *testing.T) {
	anchor := config.TimeOfDay{Hour: 6}
	cfg := testConfig("1d", rule("1h", 24), config.RetentionRule{
		Name:      "weekly",
		Interval:  config.MustDuration("7d"),
		Count:     4,
		StartTime: &anchor,
		Path:      "pool/archive",
	})

	ps := PoliciesFrom(cfg)
	assert.Equal(t, []Policy{
		{Name: "1hx24", Interval: time.Hour, Count: 24, Path: "pool"},
		{Name: "weekly", Interval: 7 * 24 * time.Hour, Count: 4, Anchor: anchor, Path: "pool/archive", PathOverride: true},
	}, ps)
}

func TestEvaluate_SkipsEmptyWindows(t *testing.T) {
	sorted := []snapshot.Snapshot{
		snapAt("pool/data", at("2023-10-27T09:30:00")),
		snapAt("pool/data", at("2023-10-27T12:45:00")),
	}
	p := Policy{Name: "hourly", Interval: time.Hour, Count: 5}

	sel := Evaluate(p, sorted, at("2023-10-27T14:00:00"), time.UTC)

	// windows ending 14,13,12,11,10: only 13:00 and 10:00 hold a snapshot
	if assert.Len(t, sel, 2) {
		assert.Equal(t, 1, sel[0].Index)
		assert.Equal(t, sorted[1].Name, sel[0].Snapshot.Name)
		assert.Equal(t, 4, sel[1].Index)
		assert.Equal(t, sorted[0].Name, sel[1].Snapshot.Name)
		assert.Equal(t, "hourly", sel[1].Rule)
	}
}

func TestEvaluate_IgnoresFutureSnapshots(t *testing.T) {
	sorted := []snapshot.Snapshot{
		snapAt("pool/data", at("2023-10-27T13:30:00")),
		snapAt("pool/data", at("2023-10-27T14:30:00")),
	}
	p := Policy{Interval: time.Hour, Count: 1}

	sel := Evaluate(p, sorted, at("2023-10-27T14:00:00"), time.UTC)
	if assert.Len(t, sel, 1) {
		assert.Equal(t, sorted[0].Name, sel[0].Snapshot.Name)
	}
}
