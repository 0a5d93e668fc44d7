package meal

import (
	"fmt"
	"strings"
	"time"
)

// Type is a meal slot or NotMealTime.
type Type string

const (
	Breakfast   Type = "BREAKFAST"
	Lunch       Type = "LUNCH"
	Dinner      Type = "DINNER"
	NotMealTime Type = "NOT_MEAL_TIME"
)

// Types lists the real meals in serving order.
var Types = []Type{Breakfast, Lunch, Dinner}

// DayLayout is the calendar day key format.
const DayLayout = "2006-01-02"

// ParseType accepts "breakfast", "LUNCH" and similar. NotMealTime is rejected.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToUpper(strings.TrimSpace(s))) {
	case Breakfast:
		return Breakfast, nil
	case Lunch:
		return Lunch, nil
	case Dinner:
		return Dinner, nil
	}
	return "", fmt.Errorf("unknown meal type %q", s)
}

// Key is the lowercase form used in storage and head count buckets.
func (t Type) Key() string { return strings.ToLower(string(t)) }

// Window is a half-open [Start, End) interval of minutes after local midnight.
type Window struct {
	Meal  Type `json:"meal"`
	Start int  `json:"start_minute"`
	End   int  `json:"end_minute"`
}

func (w Window) contains(minute int) bool {
	return minute >= w.Start && minute < w.End
}

// Label renders the window as "07:00-10:00".
func (w Window) Label() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// DefaultWindows are the fixed serving hours.
var DefaultWindows = []Window{
	{Meal: Breakfast, Start: 7 * 60, End: 10 * 60},
	{Meal: Lunch, Start: 12 * 60, End: 15 * 60},
	{Meal: Dinner, Start: 19 * 60, End: 22 * 60},
}

// Classifier maps timestamps to meal windows in a fixed location.
type Classifier struct {
	loc     *time.Location
	windows []Window
}

// NewClassifier builds a classifier. A nil location means time.Local; nil
// windows means DefaultWindows.
func NewClassifier(loc *time.Location, windows []Window) (*Classifier, error) {
	if loc == nil {
		loc = time.Local
	}
	if windows == nil {
		windows = DefaultWindows
	}
	ws := make([]Window, len(windows))
	copy(ws, windows)
	for i, w := range ws {
		if w.Start < 0 || w.End > 24*60 || w.Start >= w.End {
			return nil, fmt.Errorf("window %s: invalid bounds %d-%d", w.Meal, w.Start, w.End)
		}
		if w.Meal == NotMealTime || w.Meal == "" {
			return nil, fmt.Errorf("window %d: meal required", i)
		}
		for _, other := range ws[:i] {
			if w.Start < other.End && other.Start < w.End {
				return nil, fmt.Errorf("window %s overlaps %s", w.Meal, other.Meal)
			}
		}
	}
	return &Classifier{loc: loc, windows: ws}, nil
}

// Default returns the classifier over DefaultWindows in loc.
func Default(loc *time.Location) *Classifier {
	c, _ := NewClassifier(loc, nil)
	return c
}

// Location returns the classifier's time zone.
func (c *Classifier) Location() *time.Location { return c.loc }

// Windows returns a copy of the configured windows.
func (c *Classifier) Windows() []Window {
	out := make([]Window, len(c.windows))
	copy(out, c.windows)
	return out
}

// Classify returns the active meal at t, or NotMealTime.
func (c *Classifier) Classify(t time.Time) Type {
	local := t.In(c.loc)
	minute := local.Hour()*60 + local.Minute()
	for _, w := range c.windows {
		if w.contains(minute) {
			return w.Meal
		}
	}
	return NotMealTime
}

// Day returns the local calendar date of t as a DayLayout key.
func (c *Classifier) Day(t time.Time) string {
	return t.In(c.loc).Format(DayLayout)
}

// ParseDay parses a DayLayout key in the classifier's location.
func (c *Classifier) ParseDay(day string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, day, c.loc)
}
