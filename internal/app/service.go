package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"taskhub/api/internal/auth"
	"taskhub/api/internal/authpw"
	"taskhub/api/internal/config"
	"taskhub/api/internal/drive"
	"taskhub/api/internal/logging"
	"taskhub/api/internal/messaging"
	"taskhub/api/internal/realtime"
	"taskhub/api/internal/search"
	"taskhub/api/internal/store"
	"taskhub/api/internal/todo"
)

// Session is the viewer resolved from one request's bearer token. It is built per request and
// never cached process-wide.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	IsAdmin      bool
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	GetProject(context.Context, string) (store.Project, error)
	ListCapabilities(context.Context, string) ([]store.Capability, error)
	ListProjectMembers(context.Context, string) ([]store.ProjectMember, error)
	IsProjectMember(context.Context, string, string) (bool, error)
	AddProjectMember(context.Context, string, string, string) error
	RemoveProjectMember(context.Context, string, string) (bool, error)
	ListUserProjectIDs(context.Context, string) ([]string, error)

	ListDepartmentMembers(context.Context, string) ([]store.DepartmentMember, error)
	ReportRows(context.Context, string, time.Time, time.Time) (store.ReportRows, error)
	ListContentItems(context.Context, string, time.Time, time.Time) ([]store.ContentItem, error)
	ListLeaveRequests(context.Context, string, time.Time, time.Time) ([]store.LeaveRequest, error)

	messaging.Repository
	todo.Store
	sessionStore
	Ping(ctx context.Context) error
}

// sessionStore keeps refresh sessions. PostgresStore and session.RedisStore both satisfy it; the
// Redis variant only fills in the user id.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
}

type mailer interface {
	IsConfigured() bool
	SendWelcomeEmail(to, userName string) error
	SendProjectInviteEmail(to, userName, projectID, projectName string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	messages  *messaging.Service
	todos     *todo.Service
	search    searcher
	mail      mailer
	drive     *drive.Proxy
	now       func() time.Time
}

// Deps are the optional collaborators. Nil Sessions falls back to the store, nil Hub to an
// in-process fan-out.
type Deps struct {
	Sessions sessionStore
	Hub      realtime.Hub
	Search   *search.Service
	Mail     mailer
	Drive    *drive.Proxy
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Deps) *Service {
	return newService(cfg, dataStore, deps)
}

func newService(cfg config.Config, ds dataStore, deps Deps) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     ds,
		sessions:  deps.Sessions,
		passwords: authpw.NewService(ds),
		todos:     todo.NewService(ds),
		mail:      deps.Mail,
		drive:     deps.Drive,
		now:       time.Now,
	}
	if svc.sessions == nil {
		svc.sessions = ds
	}
	hub := deps.Hub
	if hub == nil {
		hub = realtime.NewLocalHub()
	}
	svc.messages = messaging.NewService(ds, hub)
	if deps.Search != nil {
		svc.search = deps.Search
	}
	if svc.drive == nil {
		svc.drive = drive.NewProxy(nil, drive.Options{})
	}
	return svc
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		if !errors.Is(err, authpw.ErrInvalidCredentials) {
			logging.LogError("login", err, map[string]interface{}{"email": email})
		}
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token, claims, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, user.Email, user.IsAdmin, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.NewOpaqueToken()
	if err != nil {
		return Session{}, err
	}
	refreshExpires := s.now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		IsAdmin:      user.IsAdmin,
		JTI:          claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		IsAdmin:   user.IsAdmin,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the access token and the refresh session. Failures are logged, never returned,
// so a client can always tear its session down.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			logging.LogError("logout", err, map[string]interface{}{"user_id": session.UserID})
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			logging.LogError("logout", err, map[string]interface{}{"user_id": session.UserID})
		}
	}
	return nil
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) ListTodos(ctx context.Context, session Session) ([]map[string]any, error) {
	items, err := s.todos.List(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return todoPayloads(items), nil
}

// BulkTodos applies one operation to many todos. On partial failure the payload still carries
// the reconciled list.
func (s *Service) BulkTodos(ctx context.Context, session Session, op string, ids []string) (map[string]any, error) {
	parsed, err := todo.ParseOp(op)
	if err != nil {
		return nil, err
	}
	res, err := s.todos.Bulk(ctx, session.UserID, parsed, ids)
	payload := map[string]any{
		"todos":     todoPayloads(res.Todos),
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
	}
	if errors.Is(err, todo.ErrSomeFailed) {
		return nil, domainError(http.StatusMultiStatus, "PARTIAL_FAILURE", err.Error(), payload)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Service) Drive(ctx context.Context, session Session, req drive.Request) (map[string]interface{}, error) {
	if !session.IsAdmin {
		return nil, errForbidden
	}
	res, err := s.drive.Handle(ctx, req)
	if err != nil {
		logging.LogError("drive", err, map[string]interface{}{"action": req.Action, "user_id": session.UserID})
		return nil, err
	}
	return res, nil
}

func (s *Service) Search(ctx context.Context, session Session, text, filterType string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if s.search == nil || text == "" {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	rtype, ok := search.ParseResultType(filterType)
	if !ok {
		return search.Response{}, validationError("type must be project or task")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	projectIDs, err := s.store.ListUserProjectIDs(ctx, session.UserID)
	if err != nil {
		return search.Response{}, err
	}
	return s.search.Search(ctx, search.Query{
		Text:       text,
		FilterType: rtype,
		ProjectIDs: projectIDs,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

func todoPayloads(items []store.Todo) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, t := range items {
		out = append(out, map[string]any{
			"id":          t.ID,
			"title":       t.Title,
			"completed":   t.Completed,
			"completedAt": t.CompletedAt,
			"createdAt":   t.CreatedAt,
		})
	}
	return out
}
