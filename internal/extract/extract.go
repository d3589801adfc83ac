// Package extract pulls typed registration fields out of free text.
// Every extractor is best effort: it returns ok=false rather than guessing.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
)

var (
	// tight candidates carry no spaces so adjacent numbers are not merged
	phoneTightPattern = regexp.MustCompile(`\+?\(?\d[\d\-().]*\d`)
	phoneLoosePattern = regexp.MustCompile(`\+?\(?\d[\d\s\-().]{8,}\d`)
	emailPattern      = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
	choicePattern     = regexp.MustCompile(`^\s*(?:option\s+)?(\d{1,3})\s*[.)]?\s*$`)
	namePattern       = regexp.MustCompile(`(?i)\b(?:my name is|i am|i'm|im|this is|name is|name:)\s+([a-z][a-z'\-]*)(?:\s+([a-z][a-z'\-]*))?`)
	wordPattern       = regexp.MustCompile(`[a-z][a-z\-]*`)
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 14
)

// Phone returns the first run of 10 to 14 digits, keeping a leading '+'.
// Dates and clock times never contribute digits to a spaced-out number.
func Phone(text string) (string, bool) {
	for _, candidate := range phoneTightPattern.FindAllString(text, -1) {
		if phone, ok := normalizePhone(candidate); ok {
			return phone, true
		}
	}
	for _, candidate := range phoneLoosePattern.FindAllString(maskDateTime(text), -1) {
		if phone, ok := normalizePhone(candidate); ok {
			return phone, true
		}
	}
	return "", false
}

// maskDateTime replaces date and time spans with a separator no phone pattern crosses
func maskDateTime(text string) string {
	for _, p := range []*regexp.Regexp{isoDatePattern, dmyDatePattern, meridiemPattern, clockPattern, oclockPattern} {
		text = p.ReplaceAllString(text, "|")
	}
	return text
}

func normalizePhone(candidate string) (string, bool) {
	var b strings.Builder
	candidate = strings.TrimSpace(candidate)
	if strings.HasPrefix(candidate, "+") {
		b.WriteByte('+')
	}
	digits := 0
	for _, r := range candidate {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			digits++
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", false
	}
	return b.String(), true
}

// Email returns the first address of the shape local@domain.tld
func Email(text string) (string, bool) {
	m := emailPattern.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

// Choice parses a bare menu number in [1, n] and returns it 1-based.
func Choice(text string, n int) (int, bool) {
	m := choicePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v, true
}

// IsNumeric reports whether text is only a menu-style number, in range or not
func IsNumeric(text string) bool {
	return choicePattern.MatchString(text)
}

var genderExact = map[string]booking.Gender{
	"m": booking.GenderMale,
	"f": booking.GenderFemale,
	"o": booking.GenderOther,
}

var genderWords = map[string]booking.Gender{
	"male":       booking.GenderMale,
	"man":        booking.GenderMale,
	"boy":        booking.GenderMale,
	"gent":       booking.GenderMale,
	"female":     booking.GenderFemale,
	"woman":      booking.GenderFemale,
	"girl":       booking.GenderFemale,
	"lady":       booking.GenderFemale,
	"other":      booking.GenderOther,
	"nonbinary":  booking.GenderOther,
	"non-binary": booking.GenderOther,
	"enby":       booking.GenderOther,
}

// Gender matches gender synonyms. Single letters only count as the whole message.
func Gender(text string) (booking.Gender, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if g, ok := genderExact[strings.Trim(lower, ".!")]; ok {
		return g, true
	}
	if strings.Contains(lower, "prefer not") {
		return booking.GenderOther, true
	}
	for _, w := range wordPattern.FindAllString(lower, -1) {
		if g, ok := genderWords[w]; ok {
			return g, true
		}
	}
	return "", false
}

// Department returns the catalog name contained in text, case-insensitively.
// The longest matching name wins so "General Medicine" beats a shorter overlap.
func Department(text string, names []string) (string, bool) {
	lower := strings.ToLower(text)
	best := ""
	for _, name := range names {
		if name == "" || !strings.Contains(lower, strings.ToLower(name)) {
			continue
		}
		if len(name) > len(best) {
			best = name
		}
	}
	return best, best != ""
}

// words that follow "I am" without being a name
var nameStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "at": true, "on": true, "for": true,
	"from": true, "here": true, "looking": true, "booking": true, "trying": true,
	"interested": true, "calling": true, "phone": true, "mobile": true, "number": true,
	"email": true, "with": true, "in": true, "to": true, "today": true, "tomorrow": true,
	"male": true, "female": true, "not": true, "new": true, "patient": true,
}

// Name reads "I am Priya", "my name is Priya Sharma" and similar introductions.
// last is empty when no plausible surname follows.
func Name(text string) (first, last string, ok bool) {
	m := namePattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	first = strings.ToLower(m[1])
	if nameStopWords[first] || isCalendarWord(first) {
		return "", "", false
	}
	last = strings.ToLower(m[2])
	if last != "" && (nameStopWords[last] || isCalendarWord(last)) {
		last = ""
	}
	return titleCase(first), titleCase(last), true
}

func titleCase(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(s, "-")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "-")
}
