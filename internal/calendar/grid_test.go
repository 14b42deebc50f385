package calendar

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

type event struct {
	Title string
	On    string
}

func eventDate(e event) string { return e.On }

func TestGenerateFebruary2024(t *testing.T) {
	today := time.Date(2024, time.February, 14, 15, 30, 0, 0, time.Local)
	days := Generate(2024, time.February, nil, eventDate, today)

	if len(days) != GridCells {
		t.Fatalf("expected %d cells, got %d", GridCells, len(days))
	}
	if days[0].Date != "2024-01-28" {
		t.Fatalf("first cell = %s, want 2024-01-28", days[0].Date)
	}
	if days[41].Date != "2024-03-09" {
		t.Fatalf("last cell = %s, want 2024-03-09", days[41].Date)
	}
	if days[0].IsCurrentMonth || !days[4].IsCurrentMonth {
		t.Fatalf("current month flags wrong: %+v %+v", days[0], days[4])
	}
	// Feb 29 exists in 2024.
	if days[32].Date != "2024-02-29" || !days[32].IsCurrentMonth {
		t.Fatalf("expected leap day at cell 32, got %+v", days[32])
	}
	todayCount := 0
	for _, d := range days {
		if d.IsToday {
			todayCount++
			if d.Date != "2024-02-14" {
				t.Fatalf("today flagged on %s", d.Date)
			}
		}
	}
	if todayCount != 1 {
		t.Fatalf("expected exactly one today cell, got %d", todayCount)
	}
}

func TestGenerateBucketsItemsAndDropsOutsideWindow(t *testing.T) {
	items := []event{
		{Title: "kickoff", On: "2024-02-01"},
		{Title: "review", On: "2024-02-01"},
		{Title: "spill", On: "2024-03-09"},
		{Title: "far", On: "2024-05-01"},
		{Title: "timestamp", On: "2024-02-01T10:00:00Z"},
	}
	days := Generate(2024, time.February, items, eventDate, time.Now())

	total := 0
	for _, d := range days {
		total += len(d.Items)
		if d.Date == "2024-02-01" && len(d.Items) != 2 {
			t.Fatalf("expected 2 items on Feb 1, got %d", len(d.Items))
		}
	}
	if total != 3 {
		t.Fatalf("expected 3 items placed, got %d", total)
	}
}

func TestWindowMatchesGrid(t *testing.T) {
	start, end := Window(2024, time.February)
	if start.Format(DateLayout) != "2024-01-28" || end.Format(DateLayout) != "2024-03-09" {
		t.Fatalf("window = %s..%s", start.Format(DateLayout), end.Format(DateLayout))
	}
}

func TestParseMonth(t *testing.T) {
	year, month, err := ParseMonth("2025-11")
	if err != nil || year != 2025 || month != time.November {
		t.Fatalf("ParseMonth = %d %v %v", year, month, err)
	}
	if _, _, err := ParseMonth("11/2025"); err == nil {
		t.Fatal("expected error for malformed month")
	}
}

func TestGenerateProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		year := rapid.IntRange(1970, 2100).Draw(t, "year")
		month := time.Month(rapid.IntRange(1, 12).Draw(t, "month"))

		base := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		n := rapid.IntRange(0, 40).Draw(t, "items")
		items := make([]event, n)
		for i := range items {
			offset := rapid.IntRange(-60, 90).Draw(t, "offset")
			items[i] = event{On: base.AddDate(0, 0, offset).Format(DateLayout)}
		}

		days := Generate(year, month, items, eventDate, time.Now())
		if len(days) != GridCells {
			t.Fatalf("got %d cells", len(days))
		}
		first, err := time.Parse(DateLayout, days[0].Date)
		if err != nil {
			t.Fatal(err)
		}
		if first.Weekday() != time.Sunday {
			t.Fatalf("first cell %s is a %s", days[0].Date, first.Weekday())
		}

		start, end := Window(year, month)
		inWindow := 0
		for _, it := range items {
			d, _ := time.Parse(DateLayout, it.On)
			if !d.Before(start) && !d.After(end) {
				inWindow++
			}
		}
		placed := 0
		for _, d := range days {
			placed += len(d.Items)
		}
		if placed != inWindow {
			t.Fatalf("placed %d items, %d fall in the window", placed, inWindow)
		}
	})
}
