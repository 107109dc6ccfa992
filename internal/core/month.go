package core

import (
	"fmt"
	"time"
)

// YearMonth identifies a calendar or reporting month.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewYearMonth normalizes out-of-range months, wrapping the year:
// NewYearMonth(2024, 13) is January 2025 and NewYearMonth(2024, 0) is December 2023.
func NewYearMonth(year, month int) YearMonth {
	idx := year*12 + (month - 1)
	return fromIndex(idx)
}

// YearMonthOf returns the month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

func fromIndex(idx int) YearMonth {
	y := idx / 12
	m := idx % 12
	if m < 0 {
		m += 12
		y--
	}
	return YearMonth{Year: y, Month: m + 1}
}

// Index is a monotonic month counter, handy for ordering and distances.
func (ym YearMonth) Index() int {
	return ym.Year*12 + (ym.Month - 1)
}

// AddMonths shifts by n months across year boundaries.
func (ym YearMonth) AddMonths(n int) YearMonth {
	return fromIndex(ym.Index() + n)
}

func (ym YearMonth) Next() YearMonth { return ym.AddMonths(1) }

func (ym YearMonth) Prev() YearMonth { return ym.AddMonths(-1) }

func (ym YearMonth) Before(o YearMonth) bool { return ym.Index() < o.Index() }

func (ym YearMonth) After(o YearMonth) bool { return ym.Index() > o.Index() }

func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

func (ym YearMonth) Validate() error {
	if ym.Month < 1 || ym.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// FirstDay is midnight UTC on the first day of the month.
func (ym YearMonth) FirstDay() time.Time {
	return time.Date(ym.Year, time.Month(ym.Month), 1, 0, 0, 0, 0, time.UTC)
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}
