// Package drive proxies file operations to Google Drive using a service account.
package drive

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotConfigured = errors.New("drive is not configured")
	ErrUnknownAction = errors.New("unknown drive action")
	ErrInvalidParams = errors.New("invalid drive parameters")
	ErrTooLarge      = errors.New("upload exceeds the size limit")
	ErrUploadTimeout = errors.New("upload timed out")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrNotFound      = errors.New("drive item not found")
	ErrUnauthorized  = errors.New("drive rejected the service account")
)

const (
	ActionListFiles        = "listFiles"
	ActionSearchFiles      = "searchFiles"
	ActionCreateFolder     = "createFolder"
	ActionUploadFile       = "uploadFile"
	ActionGetAccessToken   = "getAccessToken"
	ActionTestAuth         = "testAuth"
	ActionListSharedDrives = "listSharedDrives"
)

const (
	DefaultMaxUploadBytes = 100 << 20
	DefaultUploadTimeout  = 30 * time.Second
)

type File struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	MimeType     string     `json:"mimeType"`
	Size         int64      `json:"size,omitempty"`
	ModifiedTime *time.Time `json:"modifiedTime,omitempty"`
	Parents      []string   `json:"parents,omitempty"`
	WebViewLink  string     `json:"webViewLink,omitempty"`
	IsFolder     bool       `json:"isFolder"`
}

type SharedDrive struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type Account struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type API interface {
	ListFiles(ctx context.Context, folderID string, pageSize int64) ([]File, error)
	SearchFiles(ctx context.Context, query string, pageSize int64) ([]File, error)
	CreateFolder(ctx context.Context, name, parentID string) (File, error)
	Upload(ctx context.Context, name, mimeType, parentID string, content io.Reader) (File, error)
	AccessToken(ctx context.Context) (Token, error)
	WhoAmI(ctx context.Context) (Account, error)
	ListSharedDrives(ctx context.Context) ([]SharedDrive, error)
}

// Request is the body of the single drive endpoint. Fields beyond Action depend on the action.
type Request struct {
	Action   string `json:"action" validate:"required"`
	FolderID string `json:"folderId"`
	Query    string `json:"query"`
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
	PageSize int64  `json:"pageSize"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Content  string `json:"fileContent"`
}

type Options struct {
	MaxUploadBytes int64
	UploadTimeout  time.Duration
}

type Proxy struct {
	api  API
	opts Options
}

// NewProxy returns a proxy over api. A nil api yields ErrNotConfigured for every action.
func NewProxy(api API, opts Options) *Proxy {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}
	return &Proxy{api: api, opts: opts}
}

func (p *Proxy) Configured() bool {
	return p != nil && p.api != nil
}

// Handle runs one action and returns its JSON-ready result.
func (p *Proxy) Handle(ctx context.Context, req Request) (map[string]interface{}, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}

	switch strings.TrimSpace(req.Action) {
	case ActionListFiles:
		files, err := p.api.ListFiles(ctx, req.FolderID, req.PageSize)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"files": files}, nil

	case ActionSearchFiles:
		query := strings.TrimSpace(req.Query)
		if query == "" {
			return nil, fmt.Errorf("%w: query is required", ErrInvalidParams)
		}
		files, err := p.api.SearchFiles(ctx, query, req.PageSize)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"files": files}, nil

	case ActionCreateFolder:
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidParams)
		}
		folder, err := p.api.CreateFolder(ctx, name, req.ParentID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"folder": folder}, nil

	case ActionUploadFile:
		file, err := p.upload(ctx, req)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"file": file}, nil

	case ActionGetAccessToken:
		tok, err := p.api.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"accessToken": tok.AccessToken, "expiresAt": tok.ExpiresAt}, nil

	case ActionTestAuth:
		account, err := p.api.WhoAmI(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"ok": true, "account": account}, nil

	case ActionListSharedDrives:
		drives, err := p.api.ListSharedDrives(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"drives": drives}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownAction, req.Action)
}

func (p *Proxy) upload(ctx context.Context, req Request) (File, error) {
	name := strings.TrimSpace(req.FileName)
	if name == "" || req.Content == "" {
		return File{}, fmt.Errorf("%w: fileName and fileContent are required", ErrInvalidParams)
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	// Data URLs carry a "data:<mime>;base64," prefix.
	payload := req.Content
	if idx := strings.Index(payload, ";base64,"); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+len(";base64,"):]
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > p.opts.MaxUploadBytes+2 {
		return File{}, ErrTooLarge
	}
	content, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return File{}, fmt.Errorf("%w: fileContent is not valid base64", ErrInvalidParams)
	}
	if int64(len(content)) > p.opts.MaxUploadBytes {
		return File{}, ErrTooLarge
	}

	uctx, cancel := context.WithTimeout(ctx, p.opts.UploadTimeout)
	defer cancel()

	started := time.Now()
	file, err := p.api.Upload(uctx, name, mimeType, req.ParentID, bytes.NewReader(content))
	if err != nil {
		if errors.Is(uctx.Err(), context.DeadlineExceeded) {
			return File{}, fmt.Errorf("%w after %s", ErrUploadTimeout, p.opts.UploadTimeout)
		}
		return File{}, err
	}
	logrus.WithFields(logrus.Fields{
		"file_id":     file.ID,
		"bytes":       len(content),
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("drive upload complete")
	return file, nil
}
