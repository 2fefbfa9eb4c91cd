package leave

import "time"

// =============================================================================
// DATE - Day-granularity time point
// =============================================================================

// Date is a calendar day in UTC. All ledger dates (leave days, expiry dates,
// contract and period boundaries) are day-granular; there is no sub-day
// accounting in this system.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary time to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses a date in ISO "2006-01-02" form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.t.After(other.t) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.t.Before(other.t) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) IsZero() bool            { return d.t.IsZero() }
func (d Date) Weekday() time.Weekday   { return d.t.Weekday() }
func (d Date) Time() time.Time         { return d.t }
func (d Date) String() string          { return d.t.Format("2006-01-02") }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Between reports whether d falls in [from, to], inclusive on both ends.
func (d Date) Between(from, to Date) bool {
	return d.AfterOrEqual(from) && d.BeforeOrEqual(to)
}

// =============================================================================
// WINDOW - A contiguous validity range of days
// =============================================================================

// Window is an inclusive [StartDate, EndDate] range of days.
type Window struct {
	StartDate Date
	EndDate   Date
}

func (w Window) Contains(d Date) bool { return d.Between(w.StartDate, w.EndDate) }

func (w Window) String() string {
	return "[" + w.StartDate.String() + ", " + w.EndDate.String() + "]"
}

// DateWithinWindows reports whether the date falls inside at least one window.
// An empty window set matches everything: when no contract data exists for a
// contact the date filter degenerates to always-true rather than excluding
// all leave days.
func DateWithinWindows(d Date, windows []Window) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.Contains(d) {
			return true
		}
	}
	return false
}
