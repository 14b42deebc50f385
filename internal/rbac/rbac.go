// Package rbac resolves what a viewer may do inside a project from their capability row.
package rbac

type Action string

const (
	ActionEditMembers  Action = "edit_members"
	ActionAddMember    Action = "add_member"
	ActionRemoveMember Action = "remove_member"
	ActionCreateUser   Action = "create_user"
	ActionEditUser     Action = "edit_user"
	ActionDeleteUser   Action = "delete_user"
	ActionViewReports  Action = "view_reports"
	ActionAssignTasks  Action = "assign_tasks"
)

// Capabilities is one per-user-per-project permission row. The zero value grants nothing.
type Capabilities struct {
	ProjectID        string `json:"project_id"`
	CanCreateUsers   bool   `json:"can_create_users"`
	CanEditUsers     bool   `json:"can_edit_users"`
	CanDeleteUsers   bool   `json:"can_delete_users"`
	CanManageProject bool   `json:"can_manage_project"`
	CanViewReports   bool   `json:"can_view_reports"`
	CanAssignTasks   bool   `json:"can_assign_tasks"`
}

func Can(c Capabilities, action Action) bool {
	switch action {
	case ActionEditMembers, ActionAddMember:
		return c.CanManageProject || c.CanCreateUsers || c.CanEditUsers
	case ActionRemoveMember:
		return c.CanManageProject || c.CanEditUsers
	case ActionCreateUser:
		return c.CanCreateUsers
	case ActionEditUser:
		return c.CanEditUsers
	case ActionDeleteUser:
		return c.CanDeleteUsers
	case ActionViewReports:
		return c.CanViewReports
	case ActionAssignTasks:
		return c.CanAssignTasks || c.CanManageProject
	default:
		return false
	}
}

// Gate indexes a viewer's capability rows by project.
type Gate struct {
	byProject map[string]Capabilities
}

func NewGate(rows []Capabilities) Gate {
	byProject := make(map[string]Capabilities, len(rows))
	for _, row := range rows {
		byProject[row.ProjectID] = row
	}
	return Gate{byProject: byProject}
}

// For returns the row for projectID; a project without a row yields the zero value.
func (g Gate) For(projectID string) Capabilities {
	return g.byProject[projectID]
}

func (g Gate) Can(projectID string, action Action) bool {
	row, ok := g.byProject[projectID]
	if !ok {
		return false
	}
	return Can(row, action)
}

// CanAnywhere reports whether any project row allows action, for actions like user provisioning
// that are not scoped to a single project.
func (g Gate) CanAnywhere(action Action) bool {
	for _, row := range g.byProject {
		if Can(row, action) {
			return true
		}
	}
	return false
}

// Affordances is the set of admin actions the UI should offer for one project.
type Affordances struct {
	ProjectID    string `json:"projectId"`
	EditMembers  bool   `json:"editMembers"`
	AddMember    bool   `json:"addMember"`
	RemoveMember bool   `json:"removeMember"`
	CreateUser   bool   `json:"createUser"`
	ViewReports  bool   `json:"viewReports"`
	AssignTasks  bool   `json:"assignTasks"`
}

func (g Gate) Affordances(projectID string) Affordances {
	return Affordances{
		ProjectID:    projectID,
		EditMembers:  g.Can(projectID, ActionEditMembers),
		AddMember:    g.Can(projectID, ActionAddMember),
		RemoveMember: g.Can(projectID, ActionRemoveMember),
		CreateUser:   g.Can(projectID, ActionCreateUser),
		ViewReports:  g.Can(projectID, ActionViewReports),
		AssignTasks:  g.Can(projectID, ActionAssignTasks),
	}
}
