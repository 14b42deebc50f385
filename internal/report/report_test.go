package report

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func day(s string) time.Time {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestForDayMixedItems(t *testing.T) {
	in := NewInputs()
	on := day("2024-03-04")
	in.AddGoal(on, true)
	in.AddGoal(on, true)
	in.AddGoal(on, false)
	in.AddGoal(on, false)
	in.AddTimeBlock(on, true)
	in.AddTimeBlock(on, false)

	d := ForDay(in, on)
	if d.TotalItems != 6 || d.CompletedItems != 3 {
		t.Fatalf("items = %d/%d, want 3/6", d.CompletedItems, d.TotalItems)
	}
	if d.ProductivityScore != 50 {
		t.Fatalf("score = %d, want 50", d.ProductivityScore)
	}
}

func TestScore(t *testing.T) {
	cases := []struct {
		name                   string
		completed, total, task int
		want                   int
	}{
		{name: "nothing", want: 0},
		{name: "fallback one task", task: 1, want: 20},
		{name: "fallback capped", task: 9, want: 100},
		{name: "tasks ignored when scheduled items exist", completed: 1, total: 4, task: 5, want: 25},
		{name: "rounds half up", completed: 1, total: 8, want: 13},
		{name: "two thirds", completed: 2, total: 3, want: 67},
		{name: "all done", completed: 3, total: 3, want: 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.completed, tc.total, tc.task); got != tc.want {
				t.Fatalf("Score(%d, %d, %d) = %d, want %d", tc.completed, tc.total, tc.task, got, tc.want)
			}
		})
	}
}

func TestForWeekSumsCountsAndAveragesScores(t *testing.T) {
	in := NewInputs()
	start := day("2024-03-03")
	// Day 0: 1/1 goals -> 100. Day 1: 0/3 goals -> 0. Others empty.
	in.AddGoal(start, true)
	for i := 0; i < 3; i++ {
		in.AddGoal(start.AddDate(0, 0, 1), false)
	}

	w := ForWeek(in, start)
	if len(w.Days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(w.Days))
	}
	if w.GoalsTotal != 4 || w.GoalsCompleted != 1 {
		t.Fatalf("goals = %d/%d", w.GoalsCompleted, w.GoalsTotal)
	}
	// Summed counts: 1/4 -> 25, not the mean of daily percentages.
	if w.ProductivityScore != 25 {
		t.Fatalf("weekly score = %d, want 25", w.ProductivityScore)
	}
	if w.AverageProductivity != 14.3 {
		t.Fatalf("average = %v, want 14.3", w.AverageProductivity)
	}
	if w.WeekEnd != "2024-03-09" {
		t.Fatalf("week end = %s", w.WeekEnd)
	}
}

func TestForMonthEmptyNeverDividesByZero(t *testing.T) {
	m := ForMonth(NewInputs(), 2024, time.February)
	if len(m.Days) != 29 {
		t.Fatalf("expected 29 days, got %d", len(m.Days))
	}
	if m.CompletionRate != 0 || m.ProductivityScore != 0 || m.AverageProductivity != 0 {
		t.Fatalf("expected zeros, got %+v", m)
	}
	if m.Trend != TrendStable {
		t.Fatalf("trend = %s", m.Trend)
	}
	if m.BestDay != "" {
		t.Fatalf("best day should be empty, got %s", m.BestDay)
	}
}

func TestForMonthTrendAndCompletion(t *testing.T) {
	in := NewInputs()
	// Second half of April all complete, first half all incomplete.
	for d := 1; d <= 30; d++ {
		date := time.Date(2024, time.April, d, 0, 0, 0, 0, time.UTC)
		in.AddTimeBlock(date, d > 15)
	}
	m := ForMonth(in, 2024, time.April)
	if m.Trend != TrendImproving {
		t.Fatalf("trend = %s, want improving", m.Trend)
	}
	if m.CompletionRate != 50 {
		t.Fatalf("completion rate = %d", m.CompletionRate)
	}
	if m.BestDay != "2024-04-16" {
		t.Fatalf("best day = %s", m.BestDay)
	}
}

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		name   string
		scores []int
		want   Trend
	}{
		{name: "empty", scores: nil, want: TrendStable},
		{name: "flat", scores: []int{50, 50, 50, 50}, want: TrendStable},
		{name: "improving", scores: []int{10, 10, 50, 50}, want: TrendImproving},
		{name: "declining", scores: []int{50, 50, 10, 10}, want: TrendDeclining},
		{name: "within band", scores: []int{50, 50, 55, 55}, want: TrendStable},
		{name: "odd length puts middle in second half", scores: []int{10, 0, 30}, want: TrendImproving},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyTrend(tc.scores); got != tc.want {
				t.Fatalf("ClassifyTrend(%v) = %s, want %s", tc.scores, got, tc.want)
			}
		})
	}
}

func TestScoreAlwaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(0, 500).Draw(t, "total")
		completed := rapid.IntRange(0, total).Draw(t, "completed")
		tasks := rapid.IntRange(0, 50).Draw(t, "tasks")
		got := Score(completed, total, tasks)
		if got < 0 || got > 100 {
			t.Fatalf("Score(%d, %d, %d) = %d out of range", completed, total, tasks, got)
		}
		if total == 0 && tasks == 0 && got != 0 {
			t.Fatalf("empty day scored %d", got)
		}
	})
}
