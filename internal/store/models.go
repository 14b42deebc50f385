package store

import (
	"fmt"
	"time"
)

type User struct {
	ID           string
	Email        string
	DisplayName  string
	AvatarURL    *string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

type Project struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	CreatedAt   time.Time
}

type ProjectMember struct {
	ProjectID string
	UserID    string
	Role      string
	UserName  string
	Email     string
	JoinedAt  time.Time
}

// Capability is one row of admin_capabilities. A user without a row for a project gets nothing.
type Capability struct {
	UserID           string
	ProjectID        string
	CanCreateUsers   bool
	CanEditUsers     bool
	CanDeleteUsers   bool
	CanManageProject bool
	CanViewReports   bool
	CanAssignTasks   bool
}

type Department struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type DepartmentMember struct {
	ID           string
	DepartmentID string
	UserID       string
	ManagerID    *string
	Role         string
	Position     string
	UserName     string
}

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

func ParseConversationType(value string) (ConversationType, error) {
	switch ConversationType(value) {
	case ConversationDirect, ConversationGroup:
		return ConversationType(value), nil
	default:
		return "", fmt.Errorf("unknown conversation type %q", value)
	}
}

type Participant struct {
	UserID    string
	Name      string
	Email     string
	AvatarURL *string
}

type Conversation struct {
	ID                string
	Type              ConversationType
	GroupName         *string
	LastMessageAt     *time.Time
	UnreadCount       int
	OtherParticipants []Participant
}

type Message struct {
	ID                 string
	ConversationID     string
	SenderID           string
	SenderName         string
	Text               string
	CreatedAt          time.Time
	IsDeleted          bool
	DeletedForEveryone bool
	DeletedByUserIDs   []string
}

// HiddenFrom reports whether viewerID should not see the message.
func (m Message) HiddenFrom(viewerID string) bool {
	if m.DeletedForEveryone {
		return true
	}
	for _, id := range m.DeletedByUserIDs {
		if id == viewerID {
			return true
		}
	}
	return false
}

type Goal struct {
	ID        string
	UserID    string
	Title     string
	Date      time.Time
	Completed bool
}

type TimeBlock struct {
	ID        string
	UserID    string
	Title     string
	Date      time.Time
	StartsAt  time.Time
	EndsAt    time.Time
	Completed bool
}

type Task struct {
	ID          string
	ProjectID   string
	AssigneeID  *string
	Title       string
	Status      string
	DueDate     *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

type Meeting struct {
	ID       string
	UserID   string
	Title    string
	Date     time.Time
	StartsAt time.Time
}

type Todo struct {
	ID          string
	UserID      string
	Title       string
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
}

type ContentItem struct {
	ID            string
	ProjectID     string
	Title         string
	Channel       string
	Status        string
	ScheduledDate time.Time
	CreatedBy     string
}

type LeaveRequest struct {
	ID        string
	UserID    string
	UserName  string
	ProjectID string
	Kind      string
	Status    string
	StartDate time.Time
	EndDate   time.Time
}

// ReportRows is everything the report aggregator needs for one user and date range.
type ReportRows struct {
	Goals          []Goal
	TimeBlocks     []TimeBlock
	CompletedTasks []Task
	Meetings       []Meeting
}
