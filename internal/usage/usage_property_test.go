package usage

import (
	"context"
	"testing"
	"time"

	"github.com/aimerfeng/scribe/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// drawClock picks a zone and an instant inside a sane range
func drawClock(t *rapid.T) (time.Time, *time.Location) {
	offsetHours := rapid.IntRange(-12, 14).Draw(t, "offsetHours")
	loc := time.FixedZone("test", offsetHours*3600)
	sec := rapid.Int64Range(
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC).Unix(),
	).Draw(t, "nowUnix")
	return time.Unix(sec, 0).In(loc), loc
}

// drawSameDay picks an instant on now's day no later than now
func drawSameDay(t *rapid.T, now time.Time, loc *time.Location) time.Time {
	start := StartOfDay(now, loc)
	span := int64(now.Sub(start) / time.Second)
	off := rapid.Int64Range(0, span).Draw(t, "sameDayOffset")
	return start.Add(time.Duration(off) * time.Second)
}

// drawEarlierDay picks an instant on some day before now's day
func drawEarlierDay(t *rapid.T, now time.Time, loc *time.Location) time.Time {
	days := rapid.IntRange(1, 400).Draw(t, "daysAgo")
	secs := rapid.IntRange(0, 86399).Draw(t, "secondOfDay")
	day := StartOfDay(now, loc).AddDate(0, 0, -days)
	return day.Add(time.Duration(secs) * time.Second)
}

// TestProperty_FreeUnderLimit_AllowsAndIncrements tests that a free user below
// the limit on the same day is admitted and consumes exactly one unit.
func TestProperty_FreeUnderLimit_AllowsAndIncrements(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now, loc := drawClock(rt)
		limit := rapid.IntRange(1, 50).Draw(rt, "limit")
		count := rapid.IntRange(0, limit-1).Draw(rt, "count")
		last := drawSameDay(rt, now, loc)

		q := &models.UserQuota{UserID: uuid.New(), DailyUsageCount: count, LastUsedDate: &last}
		d := Evaluate(q, now, loc, limit)

		if !d.Allowed {
			rt.Fatalf("PROPERTY VIOLATION: count %d < limit %d was denied", count, limit)
		}
		if q.DailyUsageCount != count+1 {
			rt.Fatalf("PROPERTY VIOLATION: count went %d -> %d, want +1", count, q.DailyUsageCount)
		}
		if q.LastUsedDate == nil || !q.LastUsedDate.Equal(now) {
			rt.Fatalf("PROPERTY VIOLATION: lastUsedDate not set to now")
		}
		if !d.Dirty {
			rt.Fatalf("PROPERTY VIOLATION: allowed decision must be persisted")
		}
		if d.Remaining != limit-count-1 {
			rt.Fatalf("PROPERTY VIOLATION: remaining %d, want %d", d.Remaining, limit-count-1)
		}
	})
}

// TestProperty_FreeAtLimit_Denies tests that a free user who spent today's
// allowance is denied without any write.
func TestProperty_FreeAtLimit_Denies(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now, loc := drawClock(rt)
		limit := rapid.IntRange(0, 50).Draw(rt, "limit")
		count := rapid.IntRange(limit, limit+10).Draw(rt, "count")
		if count == 0 {
			count = 1
		}
		last := drawSameDay(rt, now, loc)

		q := &models.UserQuota{UserID: uuid.New(), DailyUsageCount: count, LastUsedDate: &last}
		d := Evaluate(q, now, loc, limit)

		if d.Allowed {
			rt.Fatalf("PROPERTY VIOLATION: count %d >= limit %d was allowed", count, limit)
		}
		if d.Reason != ReasonLimitReached {
			rt.Fatalf("PROPERTY VIOLATION: reason %q", d.Reason)
		}
		if q.DailyUsageCount != count || !q.LastUsedDate.Equal(last) {
			rt.Fatalf("PROPERTY VIOLATION: same-day deny mutated the record")
		}
		if d.Dirty {
			rt.Fatalf("PROPERTY VIOLATION: same-day deny must not be persisted")
		}
	})
}

// TestProperty_NewDay_ResetsThenAllows tests that any count from an earlier
// day is discarded before the limit check.
func TestProperty_NewDay_ResetsThenAllows(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now, loc := drawClock(rt)
		limit := rapid.IntRange(1, 50).Draw(rt, "limit")
		count := rapid.IntRange(0, 1000).Draw(rt, "count")

		q := &models.UserQuota{UserID: uuid.New(), DailyUsageCount: count}
		if rapid.Bool().Draw(rt, "neverUsed") {
			q.LastUsedDate = nil
		} else {
			last := drawEarlierDay(rt, now, loc)
			q.LastUsedDate = &last
		}

		d := Evaluate(q, now, loc, limit)

		if !d.Allowed {
			rt.Fatalf("PROPERTY VIOLATION: first request of the day was denied")
		}
		if q.DailyUsageCount != 1 {
			rt.Fatalf("PROPERTY VIOLATION: count after rollover = %d, want 1", q.DailyUsageCount)
		}
	})
}

// TestProperty_Pro_NeverMutated tests that pro users always pass and their
// record is left untouched.
func TestProperty_Pro_NeverMutated(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now, loc := drawClock(rt)
		limit := rapid.IntRange(0, 50).Draw(rt, "limit")
		count := rapid.IntRange(0, 10000).Draw(rt, "count")

		q := &models.UserQuota{UserID: uuid.New(), IsPro: true, DailyUsageCount: count}
		if rapid.Bool().Draw(rt, "hasDate") {
			last := drawEarlierDay(rt, now, loc)
			q.LastUsedDate = &last
		}
		before := q.Clone()

		d := Evaluate(q, now, loc, limit)

		if !d.Allowed || !d.Pro {
			rt.Fatalf("PROPERTY VIOLATION: pro user was not allowed")
		}
		if d.Dirty {
			rt.Fatalf("PROPERTY VIOLATION: pro bypass must not write")
		}
		if q.DailyUsageCount != before.DailyUsageCount {
			rt.Fatalf("PROPERTY VIOLATION: pro count changed %d -> %d", before.DailyUsageCount, q.DailyUsageCount)
		}
		if (q.LastUsedDate == nil) != (before.LastUsedDate == nil) ||
			(q.LastUsedDate != nil && !q.LastUsedDate.Equal(*before.LastUsedDate)) {
			rt.Fatalf("PROPERTY VIOLATION: pro lastUsedDate changed")
		}
	})
}

// TestProperty_ConsecutiveAdmits_ConsumeTwo tests that two sequential calls on
// the same day consume exactly two units while under the limit.
func TestProperty_ConsecutiveAdmits_ConsumeTwo(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now, loc := drawClock(rt)
		limit := rapid.IntRange(2, 50).Draw(rt, "limit")
		count := rapid.IntRange(0, limit-2).Draw(rt, "count")
		last := drawSameDay(rt, now, loc)

		q := &models.UserQuota{UserID: uuid.New(), DailyUsageCount: count, LastUsedDate: &last}
		first := Evaluate(q, now, loc, limit)
		second := Evaluate(q, now.Add(time.Millisecond), loc, limit)

		if !first.Allowed || !second.Allowed {
			rt.Fatalf("PROPERTY VIOLATION: consecutive admits under limit denied")
		}
		if q.DailyUsageCount != count+2 {
			rt.Fatalf("PROPERTY VIOLATION: consumed %d units, want 2", q.DailyUsageCount-count)
		}
	})
}

// TestProperty_Gate_SequentialAdmitsNeverExceedLimit tests that a run of
// admissions within one day allows exactly the remaining allowance.
func TestProperty_Gate_SequentialAdmitsNeverExceedLimit(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now, loc := drawClock(rt)
		limit := rapid.IntRange(0, 10).Draw(rt, "limit")
		calls := rapid.IntRange(1, 20).Draw(rt, "calls")

		st := newMemStore()
		id := st.add(&models.UserQuota{})
		gate := NewGate(st, limit, WithClock(func() time.Time { return now }), WithLocation(loc))

		allowed := 0
		for i := 0; i < calls; i++ {
			d, err := gate.Admit(context.Background(), id)
			if err != nil {
				rt.Fatalf("unexpected error: %v", err)
			}
			if d.Allowed {
				allowed++
			}
		}

		want := calls
		if want > limit {
			want = limit
		}
		if allowed != want {
			rt.Fatalf("PROPERTY VIOLATION: %d of %d calls allowed with limit %d", allowed, calls, limit)
		}
		if got := st.get(id).DailyUsageCount; got != want {
			rt.Fatalf("PROPERTY VIOLATION: stored count %d, want %d", got, want)
		}
	})
}

func TestEvaluate_Scenarios(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 5, 17, 15, 30, 0, 0, loc)
	today := now.Add(-2 * time.Hour)
	yesterday := now.AddDate(0, 0, -1)

	tests := []struct {
		name      string
		quota     models.UserQuota
		wantAllow bool
		wantCount int
	}{
		{"free at limit today", models.UserQuota{DailyUsageCount: 5, LastUsedDate: &today}, false, 5},
		{"free at limit yesterday", models.UserQuota{DailyUsageCount: 5, LastUsedDate: &yesterday}, true, 1},
		{"pro far over limit", models.UserQuota{IsPro: true, DailyUsageCount: 999, LastUsedDate: &today}, true, 999},
		{"new user", models.UserQuota{DailyUsageCount: 0}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.quota
			d := Evaluate(&q, now, loc, DefaultDailyLimit)
			assert.Equal(t, tt.wantAllow, d.Allowed)
			assert.Equal(t, tt.wantCount, q.DailyUsageCount)
		})
	}
}

func TestEvaluate_ResetThenDenyIsPersisted(t *testing.T) {
	now := time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	q := &models.UserQuota{DailyUsageCount: 3, LastUsedDate: &yesterday}

	d := Evaluate(q, now, time.UTC, 0)

	assert.False(t, d.Allowed)
	assert.True(t, d.Dirty)
	assert.Equal(t, 0, q.DailyUsageCount)
	assert.Equal(t, yesterday, *q.LastUsedDate)
}

func TestDayBoundaryFollowsLocation(t *testing.T) {
	// 23:30 UTC on the 16th is already the 17th in UTC+2
	last := time.Date(2024, 5, 16, 23, 30, 0, 0, time.UTC)
	now := time.Date(2024, 5, 17, 0, 30, 0, 0, time.UTC)
	plus2 := time.FixedZone("UTC+2", 2*3600)

	assert.Equal(t, 0, EffectiveCount(&models.UserQuota{DailyUsageCount: 4, LastUsedDate: &last}, now, time.UTC))
	assert.Equal(t, 4, EffectiveCount(&models.UserQuota{DailyUsageCount: 4, LastUsedDate: &last}, now, plus2))

	reset := NextReset(now, plus2)
	require.True(t, reset.Equal(time.Date(2024, 5, 18, 0, 0, 0, 0, plus2)), "reset at %s", reset)
}
