// Package timeparse turns the small vocabulary of date, duration, and
// frequency phrases the classifier surfaces ("friday", "next week",
// "1.5 hours", "weekdays") into concrete values. All date resolution is
// relative to an explicit reference time so results are deterministic.
package timeparse

import (
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"tues":      time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"thur":      time.Thursday,
	"thurs":     time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

// Date resolves a date phrase relative to now. It understands "today",
// "tomorrow", "next week", bare or "next"-prefixed weekday names, and
// ISO dates (YYYY-MM-DD). The result is midnight UTC of the resolved day.
// Returns false if the phrase is not a recognizable date.
func Date(s string, now time.Time) (time.Time, bool) {
	phrase := strings.ToLower(strings.TrimSpace(s))
	if phrase == "" {
		return time.Time{}, false
	}

	day := midnight(now)

	switch phrase {
	case "today", "tonight":
		return day, true
	case "tomorrow":
		return day.AddDate(0, 0, 1), true
	case "next week":
		return day.AddDate(0, 0, 7), true
	}

	if t, err := time.Parse("2006-01-02", phrase); err == nil {
		return t.UTC(), true
	}

	// "next friday" and bare "friday" both mean the next occurrence of that
	// weekday, strictly after today.
	name := strings.TrimSpace(strings.TrimPrefix(phrase, "next "))
	name = strings.TrimPrefix(name, "on ")
	if wd, ok := weekdayNames[name]; ok {
		return nextWeekday(day, wd), true
	}

	return time.Time{}, false
}

func midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func nextWeekday(day time.Time, wd time.Weekday) time.Time {
	offset := (int(wd) - int(day.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return day.AddDate(0, 0, offset)
}

// DurationMinutes parses a duration phrase into whole minutes: "30 min",
// "45 minutes", "1.5 hours", "2 hrs", "90m", "1h". Returns false if the
// phrase has no parseable quantity.
func DurationMinutes(s string) (int, bool) {
	phrase := strings.ToLower(strings.TrimSpace(s))
	if phrase == "" {
		return 0, false
	}

	// Split the leading number from the unit, tolerating "90m" as well as
	// "90 min".
	i := 0
	for i < len(phrase) && (phrase[i] >= '0' && phrase[i] <= '9' || phrase[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, false
	}

	qty, err := strconv.ParseFloat(phrase[:i], 64)
	if err != nil || qty < 0 {
		return 0, false
	}

	unit := strings.TrimSpace(phrase[i:])
	switch {
	case unit == "" || strings.HasPrefix(unit, "m"):
		return int(qty + 0.5), true
	case strings.HasPrefix(unit, "h"):
		return int(qty*60 + 0.5), true
	}
	return 0, false
}

// Weekdays parses a frequency phrase into a day-of-week set. "weekdays"
// expands to Monday through Friday, "daily"/"every day" to all seven days,
// and explicit day names accumulate into a set in the order Sunday..Saturday.
// Returns false if no day is recognized.
func Weekdays(s string) ([]time.Weekday, bool) {
	phrase := strings.ToLower(strings.TrimSpace(s))
	if phrase == "" {
		return nil, false
	}

	if strings.Contains(phrase, "weekday") {
		return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, true
	}
	if strings.Contains(phrase, "weekend") {
		return []time.Weekday{time.Sunday, time.Saturday}, true
	}
	if strings.Contains(phrase, "daily") || strings.Contains(phrase, "every day") || strings.Contains(phrase, "everyday") {
		return []time.Weekday{
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday,
		}, true
	}

	var present [7]bool
	found := false
	for _, token := range strings.FieldsFunc(phrase, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if wd, ok := weekdayNames[token]; ok {
			present[wd] = true
			found = true
		}
	}
	if !found {
		return nil, false
	}

	var days []time.Weekday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if present[wd] {
			days = append(days, wd)
		}
	}
	return days, true
}

// Semester infers the academic term containing the given time: January
// through May is Spring, June and July Summer, August through December Fall.
func Semester(t time.Time) string {
	var term string
	switch m := t.Month(); {
	case m <= time.May:
		term = "Spring"
	case m <= time.July:
		term = "Summer"
	default:
		term = "Fall"
	}
	return term + " " + strconv.Itoa(t.Year())
}
