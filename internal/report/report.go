// Package report computes productivity scores from scheduled goals, time blocks, tasks and
// meetings. Nothing here is persisted; every report is recomputed from the input rows.
package report

import (
	"math"
	"time"
)

const dateLayout = "2006-01-02"

// taskFallbackWeight is the score each completed task is worth when nothing was scheduled.
const taskFallbackWeight = 20

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Inputs holds the per-day rows for one user. Keys are YYYY-MM-DD.
type Inputs struct {
	Goals          map[string][]bool
	TimeBlocks     map[string][]bool
	TasksCompleted map[string]int
	Meetings       map[string]int
}

type Daily struct {
	Date                string `json:"date"`
	GoalsCompleted      int    `json:"goals_completed"`
	GoalsTotal          int    `json:"goals_total"`
	TimeBlocksCompleted int    `json:"time_blocks_completed"`
	TimeBlocksTotal     int    `json:"time_blocks_total"`
	TasksCompleted      int    `json:"tasks_completed"`
	Meetings            int    `json:"meetings"`
	CompletedItems      int    `json:"completed_items"`
	TotalItems          int    `json:"total_items"`
	ProductivityScore   int    `json:"productivity_score"`
}

type Weekly struct {
	WeekStart           string  `json:"week_start"`
	WeekEnd             string  `json:"week_end"`
	Days                []Daily `json:"days"`
	GoalsCompleted      int     `json:"goals_completed"`
	GoalsTotal          int     `json:"goals_total"`
	TimeBlocksCompleted int     `json:"time_blocks_completed"`
	TimeBlocksTotal     int     `json:"time_blocks_total"`
	TasksCompleted      int     `json:"tasks_completed"`
	Meetings            int     `json:"meetings"`
	ProductivityScore   int     `json:"productivity_score"`
	AverageProductivity float64 `json:"average_productivity"`
}

type Monthly struct {
	Month               string  `json:"month"`
	MonthStart          string  `json:"month_start"`
	MonthEnd            string  `json:"month_end"`
	Days                []Daily `json:"days"`
	GoalsCompleted      int     `json:"goals_completed"`
	GoalsTotal          int     `json:"goals_total"`
	TimeBlocksCompleted int     `json:"time_blocks_completed"`
	TimeBlocksTotal     int     `json:"time_blocks_total"`
	TasksCompleted      int     `json:"tasks_completed"`
	Meetings            int     `json:"meetings"`
	CompletionRate      int     `json:"completion_rate"`
	ProductivityScore   int     `json:"productivity_score"`
	AverageProductivity float64 `json:"average_productivity"`
	BestDay             string  `json:"best_day,omitempty"`
	Trend               Trend   `json:"trend"`
}

// Score reduces completed/total to a 0..100 integer, falling back to the completed-task count
// when nothing was scheduled.
func Score(completed, total, tasksCompleted int) int {
	if total > 0 {
		return clamp(int(math.Round(100 * float64(completed) / float64(total))))
	}
	if tasksCompleted > 0 {
		return clamp(tasksCompleted * taskFallbackWeight)
	}
	return 0
}

func ForDay(in Inputs, day time.Time) Daily {
	key := day.Format(dateLayout)
	d := Daily{
		Date:           key,
		TasksCompleted: in.TasksCompleted[key],
		Meetings:       in.Meetings[key],
	}
	d.GoalsCompleted, d.GoalsTotal = tally(in.Goals[key])
	d.TimeBlocksCompleted, d.TimeBlocksTotal = tally(in.TimeBlocks[key])
	d.CompletedItems = d.GoalsCompleted + d.TimeBlocksCompleted
	d.TotalItems = d.GoalsTotal + d.TimeBlocksTotal
	d.ProductivityScore = Score(d.CompletedItems, d.TotalItems, d.TasksCompleted)
	return d
}

// ForWeek covers the seven days starting at weekStart.
func ForWeek(in Inputs, weekStart time.Time) Weekly {
	start := truncateDay(weekStart)
	w := Weekly{
		WeekStart: start.Format(dateLayout),
		WeekEnd:   start.AddDate(0, 0, 6).Format(dateLayout),
		Days:      make([]Daily, 0, 7),
	}
	scoreSum := 0
	for i := 0; i < 7; i++ {
		d := ForDay(in, start.AddDate(0, 0, i))
		w.Days = append(w.Days, d)
		w.GoalsCompleted += d.GoalsCompleted
		w.GoalsTotal += d.GoalsTotal
		w.TimeBlocksCompleted += d.TimeBlocksCompleted
		w.TimeBlocksTotal += d.TimeBlocksTotal
		w.TasksCompleted += d.TasksCompleted
		w.Meetings += d.Meetings
		scoreSum += d.ProductivityScore
	}
	w.ProductivityScore = Score(w.GoalsCompleted+w.TimeBlocksCompleted, w.GoalsTotal+w.TimeBlocksTotal, w.TasksCompleted)
	w.AverageProductivity = roundTenth(float64(scoreSum) / 7)
	return w
}

func ForMonth(in Inputs, year int, month time.Month) Monthly {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	m := Monthly{
		Month:      start.Format("2006-01"),
		MonthStart: start.Format(dateLayout),
		MonthEnd:   end.Format(dateLayout),
		Days:       make([]Daily, 0, end.Day()),
	}

	scores := make([]int, 0, end.Day())
	best := -1
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		d := ForDay(in, day)
		m.Days = append(m.Days, d)
		m.GoalsCompleted += d.GoalsCompleted
		m.GoalsTotal += d.GoalsTotal
		m.TimeBlocksCompleted += d.TimeBlocksCompleted
		m.TimeBlocksTotal += d.TimeBlocksTotal
		m.TasksCompleted += d.TasksCompleted
		m.Meetings += d.Meetings
		scores = append(scores, d.ProductivityScore)
		if d.ProductivityScore > best && d.ProductivityScore > 0 {
			best = d.ProductivityScore
			m.BestDay = d.Date
		}
	}

	completed := m.GoalsCompleted + m.TimeBlocksCompleted
	total := m.GoalsTotal + m.TimeBlocksTotal
	if total > 0 {
		m.CompletionRate = clamp(int(math.Round(100 * float64(completed) / float64(total))))
	}
	m.ProductivityScore = Score(completed, total, m.TasksCompleted)
	sum := 0
	for _, s := range scores {
		sum += s
	}
	m.AverageProductivity = roundTenth(float64(sum) / float64(len(scores)))
	m.Trend = ClassifyTrend(scores)
	return m
}

// ClassifyTrend splits scores at the midpoint and compares the sums of the two halves.
func ClassifyTrend(scores []int) Trend {
	mid := len(scores) / 2
	first, second := 0, 0
	for i, s := range scores {
		if i < mid {
			first += s
		} else {
			second += s
		}
	}
	switch {
	case float64(second) > float64(first)*1.2:
		return TrendImproving
	case float64(second) < float64(first)*0.8:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func tally(items []bool) (completed, total int) {
	for _, done := range items {
		if done {
			completed++
		}
	}
	return completed, len(items)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func NewInputs() Inputs {
	return Inputs{
		Goals:          map[string][]bool{},
		TimeBlocks:     map[string][]bool{},
		TasksCompleted: map[string]int{},
		Meetings:       map[string]int{},
	}
}

func (in Inputs) AddGoal(date time.Time, completed bool) {
	key := date.Format(dateLayout)
	in.Goals[key] = append(in.Goals[key], completed)
}

func (in Inputs) AddTimeBlock(date time.Time, completed bool) {
	key := date.Format(dateLayout)
	in.TimeBlocks[key] = append(in.TimeBlocks[key], completed)
}

func (in Inputs) AddCompletedTask(completedAt time.Time) {
	in.TasksCompleted[completedAt.Format(dateLayout)]++
}

func (in Inputs) AddMeeting(date time.Time) {
	in.Meetings[date.Format(dateLayout)]++
}
