package domain

import "time"

// Season is one of the three agricultural seasons of a season-year
type Season string

const (
	SeasonA Season = "A"
	SeasonB Season = "B"
	SeasonC Season = "C"
)

// Valid reports whether s is A, B or C
func (s Season) Valid() bool {
	return s == SeasonA || s == SeasonB || s == SeasonC
}

// SeasonFor maps a date to its season and season-year. Season A runs from
// September to January, so a January date belongs to the previous year.
func SeasonFor(t time.Time) (Season, int) {
	year := t.Year()
	switch m := t.Month(); {
	case m >= time.September:
		return SeasonA, year
	case m == time.January:
		return SeasonA, year - 1
	case m <= time.June:
		return SeasonB, year
	default:
		return SeasonC, year
	}
}
