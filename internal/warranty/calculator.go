package warranty

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CoverageMonths is the warranty length counted from the purchase date.
const CoverageMonths = 18

// DateLayout is the format of end_date values.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid purchase date")

type State string

const (
	StateUnderWarranty State = "UNDER_WARRANTY"
	StateExpired       State = "EXPIRED"
)

var dayMonthYear = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)

// Layouts tried, in order, when the input is not DD/MM/YYYY.
var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// Coverage is the computed warranty window of one purchase.
type Coverage struct {
	PurchaseDate time.Time
	EndDate      string
}

// Compute parses a purchase date and derives its warranty end date.
func Compute(purchaseDate string) (Coverage, error) {
	purchased, err := ParsePurchaseDate(purchaseDate)
	if err != nil {
		return Coverage{}, err
	}
	return Coverage{PurchaseDate: purchased, EndDate: EndDate(purchased)}, nil
}

// ParsePurchaseDate returns the calendar date (UTC midnight) of s.
// DD/MM/YYYY is read positionally; anything else goes through genericLayouts.
func ParsePurchaseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])

		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// time.Date normalises 31/02 into March; reject instead.
		if t.Day() != day || int(t.Month()) != month || t.Year() != year {
			return time.Time{}, fmt.Errorf("%w: %q is not a calendar date", ErrInvalidDate, s)
		}
		return t, nil
	}

	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// EndDate adds CoverageMonths with normal calendar rollover, so
// 2023-08-31 ends on 2025-03-03.
func EndDate(purchased time.Time) string {
	return purchased.AddDate(0, CoverageMonths, 0).Format(DateLayout)
}

// StatusAt reports whether endDate has passed at now and how many whole days
// remain. daysRemaining is floored and negative once expired.
func StatusAt(endDate string, now time.Time) (State, int, error) {
	end, err := time.Parse(DateLayout, endDate)
	if err != nil {
		return "", 0, fmt.Errorf("parse end_date %q: %w", endDate, err)
	}

	days := int(math.Floor(end.Sub(now).Hours() / 24))
	if end.Before(now) {
		return StateExpired, days, nil
	}
	return StateUnderWarranty, days, nil
}
