package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePattern     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dmyDatePattern     = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})\b`)
	dayMonthPattern    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?(?:,?\s+(\d{4}))?\b`)
	monthDayPattern    = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	weekdayPattern     = regexp.MustCompile(`(?i)\b(?:next\s+|on\s+|this\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)\b`)
	dayAfterPattern    = regexp.MustCompile(`(?i)\bday\s+after\s+(?:tomorrow|tmrw|tmr)\b`)
	tomorrowPattern    = regexp.MustCompile(`(?i)\b(?:tomorrow|tmrw|tmr|tomorow)\b`)
	todayPattern       = regexp.MustCompile(`(?i)\btoday\b`)
	meridiemPattern    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:[:.]([0-5]\d))?\s*([ap])\.?m\b\.?`)
	clockPattern       = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	oclockPattern      = regexp.MustCompile(`(?i)\b(\d{1,2})\s*o'?\s?clock\b`)
	noonPattern        = regexp.MustCompile(`(?i)\bnoon\b|\bmidday\b`)
	calendarWordLookup = map[string]bool{}
)

var monthByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

var weekdayByPrefix = map[string]time.Weekday{
	"mon": time.Monday, "tue": time.Tuesday, "tues": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday, "sun": time.Sunday,
}

func init() {
	for _, w := range []string{
		"january", "february", "march", "april", "may", "june", "july", "august",
		"september", "october", "november", "december",
		"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
		"next", "this", "day", "morning", "evening", "afternoon", "noon",
	} {
		calendarWordLookup[w] = true
	}
}

func isCalendarWord(w string) bool {
	return calendarWordLookup[w]
}

// Date resolves absolute and relative dates against now. The result is midnight in
// now's location. Weekday names mean the next such day after today.
func Date(text string, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		return calendarDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), now.Location())
	}
	if m := dmyDatePattern.FindStringSubmatch(text); m != nil {
		return calendarDate(atoi(m[3]), atoi(m[2]), atoi(m[1]), now.Location())
	}
	if m := dayMonthPattern.FindStringSubmatch(text); m != nil {
		return namedMonthDate(today, m[2], m[1], m[3])
	}
	if m := monthDayPattern.FindStringSubmatch(text); m != nil {
		return namedMonthDate(today, m[1], m[2], m[3])
	}
	if dayAfterPattern.MatchString(text) {
		return today.AddDate(0, 0, 2), true
	}
	if tomorrowPattern.MatchString(text) {
		return today.AddDate(0, 0, 1), true
	}
	if todayPattern.MatchString(text) {
		return today, true
	}
	if m := weekdayPattern.FindStringSubmatch(text); m != nil {
		wd := weekdayByPrefix[strings.ToLower(m[1])[:3]]
		if w, ok := weekdayByPrefix[strings.ToLower(m[1])]; ok {
			wd = w
		}
		diff := (int(wd) - int(today.Weekday()) + 7) % 7
		if diff == 0 {
			diff = 7
		}
		return today.AddDate(0, 0, diff), true
	}
	return time.Time{}, false
}

func namedMonthDate(today time.Time, month, day, year string) (time.Time, bool) {
	mon, ok := monthByPrefix[strings.ToLower(month)]
	if !ok {
		mon, ok = monthByPrefix[strings.ToLower(month)[:3]]
	}
	if !ok {
		return time.Time{}, false
	}
	if year != "" {
		return calendarDate(atoi(year), int(mon), atoi(day), today.Location())
	}
	d, ok := calendarDate(today.Year(), int(mon), atoi(day), today.Location())
	if ok && d.Before(today) {
		return calendarDate(today.Year()+1, int(mon), atoi(day), today.Location())
	}
	return d, ok
}

// calendarDate rejects dates time.Date would normalise, like 31 February
func calendarDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// Time finds a clock time and collapses it to the hour as "HH:00".
func Time(text string) (string, bool) {
	if m := meridiemPattern.FindStringSubmatch(text); m != nil {
		hour := atoi(m[1])
		if hour < 1 || hour > 12 {
			return "", false
		}
		pm := strings.EqualFold(m[3], "p")
		switch {
		case pm && hour != 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
		return formatHour(hour), true
	}
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		return formatHour(atoi(m[1])), true
	}
	if m := oclockPattern.FindStringSubmatch(text); m != nil {
		hour := atoi(m[1])
		if hour > 23 {
			return "", false
		}
		return formatHour(hour), true
	}
	if noonPattern.MatchString(text) {
		return formatHour(12), true
	}
	return "", false
}

// DateTime requires both a date and a time in text.
func DateTime(text string, now time.Time) (time.Time, string, bool) {
	date, ok := Date(text, now)
	if !ok {
		return time.Time{}, "", false
	}
	hhmm, ok := Time(text)
	if !ok {
		return time.Time{}, "", false
	}
	return date, hhmm, true
}

func formatHour(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
