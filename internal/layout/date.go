package layout

import (
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

const (
	dayMonthYear       = "2/1/2006"
	dayMonthYearDouble = "2//1/2006"
	uploadTimestamp    = "Monday, January 2, 2006 - 15:04"
)

// fiveDigitYear matches the 202x typo where a digit was doubled into the year.
var fiveDigitYear = regexp.MustCompile(`(\d{1,2}/\d{1,2}/)202\d{2}`)

// ParseDate parses a day/month/year date in UTC. A five-digit 202xy year is
// corrected to 2023 and a doubled first separator is accepted. Anything else
// yields a *submission.DateFormatError.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(dayMonthYear, s, time.UTC); err == nil {
		return t, nil
	}
	if fixed := fiveDigitYear.ReplaceAllString(s, "${1}2023"); fixed != s {
		if t, err := time.ParseInLocation(dayMonthYear, fixed, time.UTC); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation(dayMonthYearDouble, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, &submission.DateFormatError{Input: raw}
}

// ParseUploadTimestamp parses the "Monday, January 2, 2006 - 15:04" form
// used on contact-group pages.
func ParseUploadTimestamp(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(uploadTimestamp, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, &submission.DateFormatError{Input: raw}
	}
	return t, nil
}
