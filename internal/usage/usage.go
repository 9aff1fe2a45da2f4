// Package usage meters free-tier generation requests.
//
// The daily counter rolls over lazily: a request on a new calendar day resets
// the stored count before it is checked against the limit. No background job
// touches the counters.
package usage

import (
	"time"

	"github.com/aimerfeng/scribe/internal/models"
)

// DefaultDailyLimit is the number of generations a free user gets per day
const DefaultDailyLimit = 5

// ReasonLimitReached is the deny reason once today's allowance is spent
const ReasonLimitReached = "limit_reached"

// Decision is the outcome of one admission check
type Decision struct {
	Allowed bool
	Reason  string
	Pro     bool

	// Count is the stored counter after the decision was applied
	Count     int
	Limit     int
	Remaining int
	ResetsAt  time.Time

	// Dirty reports whether the quota record changed and must be written back
	Dirty bool
}

// Evaluate applies the admission rules to q in memory and reports the outcome.
// Pro users pass without any change to q. It never touches storage.
func Evaluate(q *models.UserQuota, now time.Time, loc *time.Location, limit int) Decision {
	d := Decision{
		Pro:      q.IsPro,
		Limit:    limit,
		ResetsAt: NextReset(now, loc),
	}

	if q.IsPro {
		d.Allowed = true
		d.Count = q.DailyUsageCount
		d.Remaining = -1
		return d
	}

	reset := !usedToday(q.LastUsedDate, now, loc)
	if reset {
		d.Dirty = q.DailyUsageCount != 0
		q.DailyUsageCount = 0
	}

	if q.DailyUsageCount >= limit {
		d.Reason = ReasonLimitReached
		d.Count = q.DailyUsageCount
		return d
	}

	q.DailyUsageCount++
	stamp := now
	q.LastUsedDate = &stamp

	d.Allowed = true
	d.Dirty = true
	d.Count = q.DailyUsageCount
	d.Remaining = limit - q.DailyUsageCount
	return d
}

// EffectiveCount is the number of units q has consumed on now's day
func EffectiveCount(q *models.UserQuota, now time.Time, loc *time.Location) int {
	if !usedToday(q.LastUsedDate, now, loc) {
		return 0
	}
	return q.DailyUsageCount
}

// StartOfDay truncates t to midnight in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// NextReset is the next midnight in loc after now
func NextReset(now time.Time, loc *time.Location) time.Time {
	return StartOfDay(now, loc).AddDate(0, 0, 1)
}

func usedToday(last *time.Time, now time.Time, loc *time.Location) bool {
	if last == nil {
		return false
	}
	return StartOfDay(*last, loc).Equal(StartOfDay(now, loc))
}
