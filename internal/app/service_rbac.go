package app

import (
	"context"
	"net/http"
	"strings"

	"taskhub/api/internal/authpw"
	"taskhub/api/internal/logging"
	"taskhub/api/internal/rbac"
	"taskhub/api/internal/store"
)

const defaultMemberRole = "member"

// gate loads the viewer's capability rows. It is rebuilt per request so revocations apply at once.
func (s *Service) gate(ctx context.Context, session Session) (rbac.Gate, error) {
	rows, err := s.store.ListCapabilities(ctx, session.UserID)
	if err != nil {
		return rbac.Gate{}, err
	}
	caps := make([]rbac.Capabilities, 0, len(rows))
	for _, row := range rows {
		caps = append(caps, rbac.Capabilities{
			ProjectID:        row.ProjectID,
			CanCreateUsers:   row.CanCreateUsers,
			CanEditUsers:     row.CanEditUsers,
			CanDeleteUsers:   row.CanDeleteUsers,
			CanManageProject: row.CanManageProject,
			CanViewReports:   row.CanViewReports,
			CanAssignTasks:   row.CanAssignTasks,
		})
	}
	return rbac.NewGate(caps), nil
}

// requireProjectAccess allows project members and anyone holding a capability row for it.
func (s *Service) requireProjectAccess(ctx context.Context, session Session, projectID string) error {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return err
	}
	member, err := s.store.IsProjectMember(ctx, projectID, session.UserID)
	if err != nil {
		return err
	}
	if member {
		return nil
	}
	gate, err := s.gate(ctx, session)
	if err != nil {
		return err
	}
	if gate.For(projectID) != (rbac.Capabilities{}) {
		return nil
	}
	return domainError(http.StatusForbidden, "NOT_PROJECT_MEMBER", "You are not a member of this project", nil)
}

func (s *Service) Permissions(ctx context.Context, session Session, projectID string) (rbac.Affordances, error) {
	gate, err := s.gate(ctx, session)
	if err != nil {
		return rbac.Affordances{}, err
	}
	return gate.Affordances(projectID), nil
}

func (s *Service) ListMembers(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	if err := s.requireProjectAccess(ctx, session, projectID); err != nil {
		return nil, err
	}
	members, err := s.store.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	gate, err := s.gate(ctx, session)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, m := range members {
		items = append(items, memberPayload(m))
	}
	return map[string]any{
		"projectId":   projectID,
		"members":     items,
		"permissions": gate.Affordances(projectID),
	}, nil
}

type AddMemberInput struct {
	UserID string `json:"userId"`
	Email  string `json:"email" validate:"omitempty,email"`
	Role   string `json:"role" validate:"omitempty,oneof=member lead viewer"`
}

// AddMember adds a user by id or email. Adding an existing member is reported, not rejected.
func (s *Service) AddMember(ctx context.Context, session Session, projectID string, input AddMemberInput) (map[string]any, bool, error) {
	gate, err := s.gate(ctx, session)
	if err != nil {
		return nil, false, err
	}
	if !gate.Can(projectID, rbac.ActionAddMember) {
		return nil, false, errForbidden
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, false, err
	}

	var user store.User
	switch {
	case strings.TrimSpace(input.UserID) != "":
		user, err = s.store.GetUserByID(ctx, strings.TrimSpace(input.UserID))
	case strings.TrimSpace(input.Email) != "":
		user, err = s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	default:
		return nil, false, validationError("userId or email is required")
	}
	if err != nil {
		if store.IsNotFound(err) {
			return nil, false, domainError(http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
		}
		return nil, false, err
	}

	already, err := s.store.IsProjectMember(ctx, projectID, user.ID)
	if err != nil {
		return nil, false, err
	}
	if already {
		return alreadyMemberPayload(projectID, user), false, nil
	}

	role := input.Role
	if role == "" {
		role = defaultMemberRole
	}
	if err := s.store.AddProjectMember(ctx, projectID, user.ID, role); err != nil {
		if store.IsUniqueViolation(err) {
			return alreadyMemberPayload(projectID, user), false, nil
		}
		return nil, false, err
	}

	emailSent := false
	if s.mail != nil && s.mail.IsConfigured() {
		if err := s.mail.SendProjectInviteEmail(user.Email, user.DisplayName, project.ID, project.Name); err != nil {
			logging.LogError("project_invite_email", err, map[string]interface{}{"project_id": projectID, "user_id": user.ID})
		} else {
			emailSent = true
		}
	}
	logging.LogEvent("project_member_added", map[string]interface{}{
		"project_id": projectID,
		"user_id":    user.ID,
		"added_by":   session.UserID,
	})
	return map[string]any{
		"ok":        true,
		"projectId": projectID,
		"userId":    user.ID,
		"role":      role,
		"emailSent": emailSent,
	}, true, nil
}

func alreadyMemberPayload(projectID string, user store.User) map[string]any {
	return map[string]any{
		"ok":            true,
		"alreadyMember": true,
		"projectId":     projectID,
		"userId":        user.ID,
		"message":       user.DisplayName + " is already a member of this project",
	}
}

func (s *Service) RemoveMember(ctx context.Context, session Session, projectID, userID string) error {
	gate, err := s.gate(ctx, session)
	if err != nil {
		return err
	}
	if !gate.Can(projectID, rbac.ActionRemoveMember) {
		return errForbidden
	}
	removed, err := s.store.RemoveProjectMember(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Member not found", nil)
	}
	logging.LogEvent("project_member_removed", map[string]interface{}{
		"project_id": projectID,
		"user_id":    userID,
		"removed_by": session.UserID,
	})
	return nil
}

type CreateUserInput struct {
	Email           string `json:"email" validate:"required,email"`
	DisplayName     string `json:"displayName" validate:"required,max=120"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	IsAdmin         bool   `json:"isAdmin"`
}

// CreateUser provisions an account for someone else and sends the welcome email when SMTP is
// configured. Only admins may create other admins.
func (s *Service) CreateUser(ctx context.Context, session Session, input CreateUserInput) (map[string]any, error) {
	if !session.IsAdmin {
		gate, err := s.gate(ctx, session)
		if err != nil {
			return nil, err
		}
		if !gate.CanAnywhere(rbac.ActionCreateUser) || input.IsAdmin {
			return nil, errForbidden
		}
	}

	user, err := s.passwords.Provision(ctx, authpw.ProvisionRequest{
		Email:           input.Email,
		DisplayName:     input.DisplayName,
		Password:        input.Password,
		ConfirmPassword: input.ConfirmPassword,
		IsAdmin:         input.IsAdmin,
	})
	if err != nil {
		return nil, err
	}

	emailSent := false
	if s.mail != nil && s.mail.IsConfigured() {
		if err := s.mail.SendWelcomeEmail(user.Email, user.DisplayName); err != nil {
			logging.LogError("welcome_email", err, map[string]interface{}{"user_id": user.ID})
		} else {
			emailSent = true
		}
	}
	logging.LogEvent("user_provisioned", map[string]interface{}{"user_id": user.ID, "created_by": session.UserID})

	return map[string]any{
		"user":      userPayload(user),
		"emailSent": emailSent,
	}, nil
}

func memberPayload(m store.ProjectMember) map[string]any {
	return map[string]any{
		"userId":   m.UserID,
		"name":     m.UserName,
		"email":    m.Email,
		"role":     m.Role,
		"joinedAt": m.JoinedAt,
	}
}

func userPayload(u store.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"email":       u.Email,
		"displayName": u.DisplayName,
		"avatarUrl":   u.AvatarURL,
		"isAdmin":     u.IsAdmin,
	}
}
