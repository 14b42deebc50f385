package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, email, display_name, avatar_url, password_hash, is_admin, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	var avatar sql.NullString
	if err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &avatar, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt); err != nil {
		return User{}, err
	}
	user.AvatarURL = optionalString(avatar)
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email))
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, avatar_url, password_hash, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Email, user.DisplayName, user.AvatarURL, user.PasswordHash, user.IsAdmin)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UserDisplayName resolves a sender's name for push events.
func (s *PostgresStore) UserDisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	if err := s.db.QueryRowContext(ctx, `SELECT display_name FROM users WHERE id=$1`, userID).Scan(&name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.display_name, u.avatar_url, u.password_hash, u.is_admin, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash))
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, owner_id, created_at FROM projects WHERE id=$1
	`, projectID).Scan(&item.ID, &item.Name, &item.Description, &item.OwnerID, &item.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListCapabilities(ctx context.Context, userID string) ([]Capability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, project_id, can_create_users, can_edit_users, can_delete_users,
			can_manage_project, can_view_reports, can_assign_tasks
		FROM admin_capabilities
		WHERE user_id=$1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	defer rows.Close()

	items := make([]Capability, 0)
	for rows.Next() {
		var c Capability
		if err := rows.Scan(&c.UserID, &c.ProjectID, &c.CanCreateUsers, &c.CanEditUsers, &c.CanDeleteUsers,
			&c.CanManageProject, &c.CanViewReports, &c.CanAssignTasks); err != nil {
			return nil, fmt.Errorf("scan capability: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capabilities: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListProjectMembers(ctx context.Context, projectID string) ([]ProjectMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pm.project_id, pm.user_id, pm.role, u.display_name, u.email, pm.joined_at
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id=$1
		ORDER BY pm.joined_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectMember, 0)
	for rows.Next() {
		var m ProjectMember
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.UserName, &m.Email, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id=$1 AND user_id=$2)
	`, projectID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check project member: %w", err)
	}
	return exists, nil
}

// ListUserProjectIDs returns the projects userID belongs to, oldest membership first.
func (s *PostgresStore) ListUserProjectIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id FROM project_members WHERE user_id=$1 ORDER BY joined_at, project_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user projects: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user project: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user projects: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) AddProjectMember(ctx context.Context, projectID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role) VALUES ($1, $2, $3)
	`, projectID, userID, role)
	if err != nil {
		return fmt.Errorf("add project member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=$1 AND user_id=$2`, projectID, userID)
	if err != nil {
		return false, fmt.Errorf("remove project member: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove project member rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListDepartmentMembers(ctx context.Context, departmentID string) ([]DepartmentMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dm.id, dm.department_id, dm.user_id, dm.manager_id, dm.role, dm.position, u.display_name
		FROM department_members dm
		JOIN users u ON u.id = dm.user_id
		WHERE dm.department_id=$1
		ORDER BY dm.created_at ASC, dm.id ASC
	`, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list department members: %w", err)
	}
	defer rows.Close()

	items := make([]DepartmentMember, 0)
	for rows.Next() {
		var m DepartmentMember
		var manager sql.NullString
		if err := rows.Scan(&m.ID, &m.DepartmentID, &m.UserID, &manager, &m.Role, &m.Position, &m.UserName); err != nil {
			return nil, fmt.Errorf("scan department member: %w", err)
		}
		m.ManagerID = optionalString(manager)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate department members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.type, c.group_name, c.last_message_at,
			(SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = c.id
					AND m.sender_id <> $1
					AND m.created_at > COALESCE(cp.last_read_at, 'epoch'::timestamptz)
					AND NOT m.deleted_for_everyone
					AND NOT (m.deleted_by_user_ids @> jsonb_build_array($1::text))
			) AS unread_count
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	items := make([]Conversation, 0)
	byID := map[string]int{}
	for rows.Next() {
		var c Conversation
		var kind string
		var groupName sql.NullString
		var lastMessageAt sql.NullTime
		if err := rows.Scan(&c.ID, &kind, &groupName, &lastMessageAt, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if c.Type, err = ParseConversationType(kind); err != nil {
			return nil, fmt.Errorf("conversation %s: %w", c.ID, err)
		}
		c.GroupName = optionalString(groupName)
		c.LastMessageAt = optionalTime(lastMessageAt)
		c.OtherParticipants = []Participant{}
		byID[c.ID] = len(items)
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	participants, err := s.db.QueryContext(ctx, `
		SELECT other.conversation_id, u.id, u.display_name, u.email, u.avatar_url
		FROM conversation_participants mine
		JOIN conversation_participants other
			ON other.conversation_id = mine.conversation_id AND other.user_id <> mine.user_id
		JOIN users u ON u.id = other.user_id
		WHERE mine.user_id = $1
		ORDER BY u.display_name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversation participants: %w", err)
	}
	defer participants.Close()

	for participants.Next() {
		var conversationID string
		var p Participant
		var avatar sql.NullString
		if err := participants.Scan(&conversationID, &p.UserID, &p.Name, &p.Email, &avatar); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.AvatarURL = optionalString(avatar)
		if i, ok := byID[conversationID]; ok {
			items[i].OtherParticipants = append(items[i].OtherParticipants, p)
		}
	}
	if err := participants.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_participants SET last_read_at=NOW()
		WHERE conversation_id=$1 AND user_id=$2
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}

const messageColumns = `m.id, m.conversation_id, m.sender_id, COALESCE(u.display_name, ''), m.text, m.created_at,
	m.is_deleted, m.deleted_for_everyone, m.deleted_by_user_ids`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	var deletedBy []byte
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Text, &m.CreatedAt,
		&m.IsDeleted, &m.DeletedForEveryone, &deletedBy); err != nil {
		return Message{}, err
	}
	m.DeletedByUserIDs = []string{}
	if len(deletedBy) > 0 {
		if err := json.Unmarshal(deletedBy, &m.DeletedByUserIDs); err != nil {
			return Message{}, fmt.Errorf("decode deleted_by_user_ids for %s: %w", m.ID, err)
		}
	}
	return m, nil
}

// ListMessages returns every row of the conversation, hidden ones included, oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id=$1
		ORDER BY m.created_at ASC, m.id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id=$1
	`, messageID))
}

// InsertMessage stores the row and bumps the conversation's last_message_at in one transaction.
func (s *PostgresStore) InsertMessage(ctx context.Context, m Message) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin insert message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, m.ID, m.ConversationID, m.SenderID, m.Text).Scan(&m.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_at=$2 WHERE id=$1
	`, m.ConversationID, m.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("bump conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit insert message: %w", err)
	}
	m.DeletedByUserIDs = []string{}
	return m, nil
}

func (s *PostgresStore) DeleteMessageForUser(ctx context.Context, messageID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET deleted_by_user_ids = deleted_by_user_ids || jsonb_build_array($2::text)
		WHERE id=$1 AND NOT (deleted_by_user_ids @> jsonb_build_array($2::text))
	`, messageID, userID)
	if err != nil {
		return fmt.Errorf("delete message for user: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMessageForEveryone(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET deleted_for_everyone=TRUE, is_deleted=TRUE WHERE id=$1
	`, messageID)
	if err != nil {
		return fmt.Errorf("delete message for everyone: %w", err)
	}
	return nil
}

// ReportRows loads the goal, time block, completed task and meeting rows for [from, to].
func (s *PostgresStore) ReportRows(ctx context.Context, userID string, from, to time.Time) (ReportRows, error) {
	out := ReportRows{}

	goals, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, goal_date, completed FROM goals
		WHERE user_id=$1 AND goal_date BETWEEN $2 AND $3
	`, userID, from, to)
	if err != nil {
		return out, fmt.Errorf("list goals: %w", err)
	}
	defer goals.Close()
	for goals.Next() {
		var g Goal
		if err := goals.Scan(&g.ID, &g.UserID, &g.Title, &g.Date, &g.Completed); err != nil {
			return out, fmt.Errorf("scan goal: %w", err)
		}
		out.Goals = append(out.Goals, g)
	}
	if err := goals.Err(); err != nil {
		return out, fmt.Errorf("iterate goals: %w", err)
	}

	blocks, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, block_date, starts_at, ends_at, completed FROM time_blocks
		WHERE user_id=$1 AND block_date BETWEEN $2 AND $3
	`, userID, from, to)
	if err != nil {
		return out, fmt.Errorf("list time blocks: %w", err)
	}
	defer blocks.Close()
	for blocks.Next() {
		var b TimeBlock
		if err := blocks.Scan(&b.ID, &b.UserID, &b.Title, &b.Date, &b.StartsAt, &b.EndsAt, &b.Completed); err != nil {
			return out, fmt.Errorf("scan time block: %w", err)
		}
		out.TimeBlocks = append(out.TimeBlocks, b)
	}
	if err := blocks.Err(); err != nil {
		return out, fmt.Errorf("iterate time blocks: %w", err)
	}

	tasks, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, assignee_id, title, status, due_date, completed_at, created_at FROM tasks
		WHERE assignee_id=$1 AND completed_at IS NOT NULL
			AND completed_at >= $2 AND completed_at < ($3::date + 1)
	`, userID, from, to)
	if err != nil {
		return out, fmt.Errorf("list completed tasks: %w", err)
	}
	defer tasks.Close()
	for tasks.Next() {
		t, err := scanTask(tasks)
		if err != nil {
			return out, fmt.Errorf("scan task: %w", err)
		}
		out.CompletedTasks = append(out.CompletedTasks, t)
	}
	if err := tasks.Err(); err != nil {
		return out, fmt.Errorf("iterate tasks: %w", err)
	}

	meetings, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, meeting_date, starts_at FROM meetings
		WHERE user_id=$1 AND meeting_date BETWEEN $2 AND $3
	`, userID, from, to)
	if err != nil {
		return out, fmt.Errorf("list meetings: %w", err)
	}
	defer meetings.Close()
	for meetings.Next() {
		var m Meeting
		if err := meetings.Scan(&m.ID, &m.UserID, &m.Title, &m.Date, &m.StartsAt); err != nil {
			return out, fmt.Errorf("scan meeting: %w", err)
		}
		out.Meetings = append(out.Meetings, m)
	}
	if err := meetings.Err(); err != nil {
		return out, fmt.Errorf("iterate meetings: %w", err)
	}
	return out, nil
}

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var assignee sql.NullString
	var due, completed sql.NullTime
	if err := row.Scan(&t.ID, &t.ProjectID, &assignee, &t.Title, &t.Status, &due, &completed, &t.CreatedAt); err != nil {
		return Task{}, err
	}
	t.AssigneeID = optionalString(assignee)
	t.DueDate = optionalTime(due)
	t.CompletedAt = optionalTime(completed)
	return t, nil
}

func (s *PostgresStore) ListTodos(ctx context.Context, userID string) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, completed, completed_at, created_at
		FROM todos WHERE user_id=$1
		ORDER BY completed ASC, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	items := make([]Todo, 0)
	for rows.Next() {
		var t Todo
		var completedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Completed, &completedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		t.CompletedAt = optionalTime(completedAt)
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return items, nil
}

// CompleteTodo returns sql.ErrNoRows when the todo does not belong to userID.
func (s *PostgresStore) CompleteTodo(ctx context.Context, userID, todoID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE todos SET completed=TRUE, completed_at=COALESCE(completed_at, NOW())
		WHERE id=$1 AND user_id=$2
	`, todoID, userID)
	if err != nil {
		return fmt.Errorf("complete todo: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) DeleteTodo(ctx context.Context, userID, todoID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id=$1 AND user_id=$2`, todoID, userID)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) ListContentItems(ctx context.Context, projectID string, from, to time.Time) ([]ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, channel, status, scheduled_date, created_by
		FROM content_items
		WHERE project_id=$1 AND scheduled_date BETWEEN $2 AND $3
		ORDER BY scheduled_date ASC, title ASC
	`, projectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	items := make([]ContentItem, 0)
	for rows.Next() {
		var c ContentItem
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Title, &c.Channel, &c.Status, &c.ScheduledDate, &c.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	return items, nil
}

// ListLeaveRequests returns requests overlapping [from, to].
func (s *PostgresStore) ListLeaveRequests(ctx context.Context, projectID string, from, to time.Time) ([]LeaveRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lr.id, lr.user_id, u.display_name, lr.project_id, lr.kind, lr.status, lr.start_date, lr.end_date
		FROM leave_requests lr
		JOIN users u ON u.id = lr.user_id
		WHERE lr.project_id=$1 AND lr.start_date <= $3 AND lr.end_date >= $2
		ORDER BY lr.start_date ASC
	`, projectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	defer rows.Close()

	items := make([]LeaveRequest, 0)
	for rows.Next() {
		var l LeaveRequest
		if err := rows.Scan(&l.ID, &l.UserID, &l.UserName, &l.ProjectID, &l.Kind, &l.Status, &l.StartDate, &l.EndDate); err != nil {
			return nil, fmt.Errorf("scan leave request: %w", err)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leave requests: %w", err)
	}
	return items, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func optionalString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func optionalTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports a duplicate-key failure, e.g. adding a member twice.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
