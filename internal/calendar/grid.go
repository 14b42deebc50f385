// Package calendar lays dated items out on a fixed six-week month grid.
package calendar

import "time"

// GridCells is always six weeks of seven days, regardless of how many rows the month needs.
const GridCells = 42

// DateLayout is the key format items are bucketed by.
const DateLayout = "2006-01-02"

type Day[T any] struct {
	Date           string `json:"date"`
	IsCurrentMonth bool   `json:"isCurrentMonth"`
	IsToday        bool   `json:"isToday"`
	Items          []T    `json:"items"`
}

// Generate builds the grid for year/month starting on the Sunday on or before the 1st. dateOf
// returns an item's date key in DateLayout form; items whose key matches no cell are dropped.
func Generate[T any](year int, month time.Month, items []T, dateOf func(T) string, today time.Time) []Day[T] {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, 0, -int(first.Weekday()))
	todayKey := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).Format(DateLayout)

	days := make([]Day[T], GridCells)
	byKey := make(map[string]int, GridCells)
	for i := range days {
		date := start.AddDate(0, 0, i)
		key := date.Format(DateLayout)
		days[i] = Day[T]{
			Date:           key,
			IsCurrentMonth: date.Year() == first.Year() && date.Month() == first.Month(),
			IsToday:        key == todayKey,
			Items:          []T{},
		}
		byKey[key] = i
	}

	for _, item := range items {
		if i, ok := byKey[dateOf(item)]; ok {
			days[i].Items = append(days[i].Items, item)
		}
	}
	return days
}

// Window returns the first and last cell dates for year/month, for callers that fetch only the
// items the grid can show.
func Window(year int, month time.Month) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, 0, -int(first.Weekday()))
	return start, start.AddDate(0, 0, GridCells-1)
}

// ParseMonth accepts YYYY-MM.
func ParseMonth(value string) (int, time.Month, error) {
	parsed, err := time.Parse("2006-01", value)
	if err != nil {
		return 0, 0, err
	}
	return parsed.Year(), parsed.Month(), nil
}
