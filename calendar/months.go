package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidDateExpr is returned for month or range expressions that
	// cannot be parsed.
	ErrInvalidDateExpr = errors.New("invalid date expression")
	// ErrEmptyRange is returned when a resolved end month precedes the
	// start month.
	ErrEmptyRange = errors.New("empty month range")
)

// MonthToken identifies one target (month, year) pair.
type MonthToken struct {
	Month time.Month
	Year  int
}

func (t MonthToken) String() string {
	return fmt.Sprintf("%s %d", t.Month, t.Year)
}

// URLParam is the forexfactory month query value, e.g. "jan.2007".
func (t MonthToken) URLParam() string {
	return fmt.Sprintf("%s.%d", strings.ToLower(t.Month.String()[:3]), t.Year)
}

// FileStem is the dataset file name stem, e.g. "January_2007".
func (t MonthToken) FileStem() string {
	return fmt.Sprintf("%s_%d", t.Month, t.Year)
}

func (t MonthToken) next() MonthToken {
	if t.Month == time.December {
		return MonthToken{Month: time.January, Year: t.Year + 1}
	}
	return MonthToken{Month: t.Month + 1, Year: t.Year}
}

func (t MonthToken) before(other MonthToken) bool {
	if t.Year != other.Year {
		return t.Year < other.Year
	}
	return t.Month < other.Month
}

// ParseMonthYear parses a "month year" string such as "jan 2007" or
// "January 2007", case-insensitively.
func ParseMonthYear(s string) (MonthToken, error) {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) != 2 {
		return MonthToken{}, fmt.Errorf("%w: %q, expected \"month year\" like \"jan 2007\"", ErrInvalidDateExpr, s)
	}

	month, err := parseMonthName(parts[0])
	if err != nil {
		return MonthToken{}, err
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil || year <= 0 {
		return MonthToken{}, fmt.Errorf("%w: invalid year %q", ErrInvalidDateExpr, parts[1])
	}
	return MonthToken{Month: month, Year: year}, nil
}

func parseMonthName(s string) (time.Month, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if name == full || name == full[:3] {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: invalid month %q", ErrInvalidDateExpr, s)
}

// ResolveRange expands an inclusive (start, end) pair of "month year"
// strings into the ordered sequence of months it covers.
func ResolveRange(start, end string) ([]MonthToken, error) {
	from, err := ParseMonthYear(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseMonthYear(end)
	if err != nil {
		return nil, err
	}
	if to.before(from) {
		return nil, fmt.Errorf("%w: %s precedes %s", ErrEmptyRange, to, from)
	}

	var months []MonthToken
	for cur := from; !to.before(cur); cur = cur.next() {
		months = append(months, cur)
	}
	return months, nil
}

// ResolveTokens expands CLI month keywords relative to now. "this" is the
// current month, "next" the one after, and a bare month name targets that
// month in the current year.
func ResolveTokens(tokens []string, now time.Time) ([]MonthToken, error) {
	if len(tokens) == 0 {
		tokens = []string{"this"}
	}

	months := make([]MonthToken, 0, len(tokens))
	for _, token := range tokens {
		switch strings.ToLower(strings.TrimSpace(token)) {
		case "this":
			months = append(months, MonthToken{Month: now.Month(), Year: now.Year()})
		case "next":
			months = append(months, MonthToken{Month: now.Month(), Year: now.Year()}.next())
		default:
			month, err := parseMonthName(token)
			if err != nil {
				return nil, err
			}
			months = append(months, MonthToken{Month: month, Year: now.Year()})
		}
	}
	return months, nil
}
