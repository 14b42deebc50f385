package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"taskhub/api/internal/calendar"
	"taskhub/api/internal/hierarchy"
	"taskhub/api/internal/rbac"
	"taskhub/api/internal/report"
	"taskhub/api/internal/store"
)

const dayLayout = "2006-01-02"

func (s *Service) DepartmentHierarchy(ctx context.Context, session Session, departmentID string) (map[string]any, error) {
	rows, err := s.store.ListDepartmentMembers(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireDepartmentAccess(ctx, session, rows); err != nil {
		return nil, err
	}
	members := make([]hierarchy.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, hierarchy.Member{
			ID:        row.ID,
			UserID:    row.UserID,
			ManagerID: row.ManagerID,
			Role:      row.Role,
			UserName:  row.UserName,
			Position:  row.Position,
		})
	}
	tree := hierarchy.BuildTree(members)
	return map[string]any{
		"departmentId": departmentID,
		"tree":         tree,
		"memberCount":  hierarchy.Count(tree),
	}, nil
}

// requireDepartmentAccess allows admins, members of the department, and anyone
// who shares a project with one of its members.
func (s *Service) requireDepartmentAccess(ctx context.Context, session Session, rows []store.DepartmentMember) error {
	if session.IsAdmin {
		return nil
	}
	for _, row := range rows {
		if row.UserID == session.UserID {
			return nil
		}
	}
	viewerProjects, err := s.store.ListUserProjectIDs(ctx, session.UserID)
	if err != nil {
		return err
	}
	if len(viewerProjects) > 0 {
		shared := make(map[string]struct{}, len(viewerProjects))
		for _, id := range viewerProjects {
			shared[id] = struct{}{}
		}
		for _, row := range rows {
			ids, err := s.store.ListUserProjectIDs(ctx, row.UserID)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if _, ok := shared[id]; ok {
					return nil
				}
			}
		}
	}
	return domainError(http.StatusForbidden, "NOT_DEPARTMENT_MEMBER", "You do not have access to this department", nil)
}

// canViewReportsFor reports whether the viewer holds can_view_reports on a project targetID belongs to.
func (s *Service) canViewReportsFor(ctx context.Context, session Session, targetID string) (bool, error) {
	if session.IsAdmin {
		return true, nil
	}
	gate, err := s.gate(ctx, session)
	if err != nil {
		return false, err
	}
	projectIDs, err := s.store.ListUserProjectIDs(ctx, targetID)
	if err != nil {
		return false, err
	}
	for _, projectID := range projectIDs {
		if gate.Can(projectID, rbac.ActionViewReports) {
			return true, nil
		}
	}
	return false, nil
}

// CalendarItem is one entry on the project calendar. Leave requests appear once per covered day.
type CalendarItem struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Status   string `json:"status"`
	Channel  string `json:"channel,omitempty"`
	UserName string `json:"userName,omitempty"`
}

func (s *Service) ProjectCalendar(ctx context.Context, session Session, projectID, month string) (map[string]any, error) {
	if err := s.requireProjectAccess(ctx, session, projectID); err != nil {
		return nil, err
	}

	var year int
	var mon time.Month
	if strings.TrimSpace(month) == "" {
		now := s.now()
		year, mon = now.Year(), now.Month()
	} else {
		var err error
		year, mon, err = calendar.ParseMonth(month)
		if err != nil {
			return nil, validationError("month must be YYYY-MM")
		}
	}

	from, to := calendar.Window(year, mon)
	content, err := s.store.ListContentItems(ctx, projectID, from, to)
	if err != nil {
		return nil, err
	}
	leave, err := s.store.ListLeaveRequests(ctx, projectID, from, to)
	if err != nil {
		return nil, err
	}

	items := make([]CalendarItem, 0, len(content)+len(leave))
	for _, c := range content {
		items = append(items, CalendarItem{
			Kind:    "content",
			ID:      c.ID,
			Title:   c.Title,
			Date:    c.ScheduledDate.Format(calendar.DateLayout),
			Status:  c.Status,
			Channel: c.Channel,
		})
	}
	for _, l := range leave {
		items = append(items, leaveDays(l, from, to)...)
	}

	days := calendar.Generate(year, mon, items, func(item CalendarItem) string { return item.Date }, s.now())
	return map[string]any{
		"projectId": projectID,
		"month":     time.Date(year, mon, 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
		"days":      days,
	}, nil
}

func leaveDays(l store.LeaveRequest, from, to time.Time) []CalendarItem {
	start := truncateUTC(l.StartDate)
	end := truncateUTC(l.EndDate)
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	var out []CalendarItem
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		out = append(out, CalendarItem{
			Kind:     "leave",
			ID:       l.ID,
			Title:    l.Kind,
			Date:     day.Format(calendar.DateLayout),
			Status:   l.Status,
			UserName: l.UserName,
		})
	}
	return out
}

type ReportPeriod string

const (
	PeriodDaily   ReportPeriod = "daily"
	PeriodWeekly  ReportPeriod = "weekly"
	PeriodMonthly ReportPeriod = "monthly"
)

// Report computes the viewer's report, or another user's when the viewer may view reports in
// any project.
func (s *Service) Report(ctx context.Context, session Session, period ReportPeriod, anchor, userID string) (any, error) {
	target := session.UserID
	if userID != "" && userID != session.UserID {
		allowed, err := s.canViewReportsFor(ctx, session, userID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, errForbidden
		}
		target = userID
	}

	today := truncateUTC(s.now())
	switch period {
	case PeriodDaily:
		day := today
		if anchor != "" {
			parsed, err := time.Parse(dayLayout, anchor)
			if err != nil {
				return nil, validationError("date must be YYYY-MM-DD")
			}
			day = parsed
		}
		in, err := s.reportInputs(ctx, target, day, day)
		if err != nil {
			return nil, err
		}
		return report.ForDay(in, day), nil

	case PeriodWeekly:
		start := today.AddDate(0, 0, -int(today.Weekday()))
		if anchor != "" {
			parsed, err := time.Parse(dayLayout, anchor)
			if err != nil {
				return nil, validationError("start must be YYYY-MM-DD")
			}
			start = parsed
		}
		in, err := s.reportInputs(ctx, target, start, start.AddDate(0, 0, 6))
		if err != nil {
			return nil, err
		}
		return report.ForWeek(in, start), nil

	case PeriodMonthly:
		year, mon := today.Year(), today.Month()
		if anchor != "" {
			var err error
			year, mon, err = calendar.ParseMonth(anchor)
			if err != nil {
				return nil, validationError("month must be YYYY-MM")
			}
		}
		first := time.Date(year, mon, 1, 0, 0, 0, 0, time.UTC)
		in, err := s.reportInputs(ctx, target, first, first.AddDate(0, 1, -1))
		if err != nil {
			return nil, err
		}
		return report.ForMonth(in, year, mon), nil
	}
	return nil, validationError("unknown report period")
}

func (s *Service) reportInputs(ctx context.Context, userID string, from, to time.Time) (report.Inputs, error) {
	rows, err := s.store.ReportRows(ctx, userID, from, to)
	if err != nil {
		return report.Inputs{}, err
	}
	in := report.NewInputs()
	for _, g := range rows.Goals {
		in.AddGoal(g.Date, g.Completed)
	}
	for _, b := range rows.TimeBlocks {
		in.AddTimeBlock(b.Date, b.Completed)
	}
	for _, t := range rows.CompletedTasks {
		if t.CompletedAt != nil {
			in.AddCompletedTask(t.CompletedAt.UTC())
		}
	}
	for _, m := range rows.Meetings {
		in.AddMeeting(m.Date)
	}
	return in, nil
}

func truncateUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
