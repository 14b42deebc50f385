package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	fileFields     = "id, name, mimeType, size, modifiedTime, parents, webViewLink"
	listFields     = "files(id, name, mimeType, size, modifiedTime, parents, webViewLink)"
	defaultPage    = 100
)

// GoogleAPI talks to Drive v3 with service-account credentials.
type GoogleAPI struct {
	svc    *gdrive.Service
	tokens oauth2.TokenSource
}

// LoadCredentials returns the inline JSON key when set, otherwise the contents of file.
func LoadCredentials(inlineJSON, file string) ([]byte, error) {
	if strings.TrimSpace(inlineJSON) != "" {
		return []byte(inlineJSON), nil
	}
	if file == "" {
		return nil, ErrNotConfigured
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// NewGoogleAPI builds a Drive client from a service-account JSON key.
func NewGoogleAPI(ctx context.Context, credentialsJSON []byte) (*GoogleAPI, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, gdrive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	tokens := conf.TokenSource(ctx)
	client := oauth2.NewClient(ctx, tokens)

	svc, err := gdrive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return &GoogleAPI{svc: svc, tokens: tokens}, nil
}

// NewGoogleAPIWithService wraps an existing service, e.g. one pointed at a test endpoint.
func NewGoogleAPIWithService(svc *gdrive.Service, tokens oauth2.TokenSource) *GoogleAPI {
	return &GoogleAPI{svc: svc, tokens: tokens}
}

func (g *GoogleAPI) ListFiles(ctx context.Context, folderID string, pageSize int64) ([]File, error) {
	q := "trashed = false"
	if folderID != "" {
		q = fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
	}
	return g.list(ctx, q, pageSize)
}

func (g *GoogleAPI) SearchFiles(ctx context.Context, query string, pageSize int64) ([]File, error) {
	q := fmt.Sprintf("name contains '%s' and trashed = false", escapeQuery(query))
	return g.list(ctx, q, pageSize)
}

func (g *GoogleAPI) list(ctx context.Context, q string, pageSize int64) ([]File, error) {
	if pageSize <= 0 {
		pageSize = defaultPage
	}
	res, err := g.svc.Files.List().
		Q(q).
		PageSize(pageSize).
		Fields(listFields).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err)
	}
	files := make([]File, 0, len(res.Files))
	for _, f := range res.Files {
		files = append(files, fileFromAPI(f))
	}
	return files, nil
}

func (g *GoogleAPI) CreateFolder(ctx context.Context, name, parentID string) (File, error) {
	meta := &gdrive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	f, err := g.svc.Files.Create(meta).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return File{}, classify(err)
	}
	return fileFromAPI(f), nil
}

func (g *GoogleAPI) Upload(ctx context.Context, name, mimeType, parentID string, content io.Reader) (File, error) {
	meta := &gdrive.File{Name: name, MimeType: mimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	f, err := g.svc.Files.Create(meta).
		Media(content, googleapi.ContentType(mimeType)).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return File{}, classify(err)
	}
	return fileFromAPI(f), nil
}

func (g *GoogleAPI) AccessToken(_ context.Context) (Token, error) {
	tok, err := g.tokens.Token()
	if err != nil {
		return Token{}, fmt.Errorf("fetch access token: %w", err)
	}
	return Token{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

func (g *GoogleAPI) WhoAmI(ctx context.Context) (Account, error) {
	about, err := g.svc.About.Get().Fields("user(displayName, emailAddress)").Context(ctx).Do()
	if err != nil {
		return Account{}, classify(err)
	}
	if about.User == nil {
		return Account{}, nil
	}
	return Account{DisplayName: about.User.DisplayName, Email: about.User.EmailAddress}, nil
}

func (g *GoogleAPI) ListSharedDrives(ctx context.Context) ([]SharedDrive, error) {
	res, err := g.svc.Drives.List().PageSize(defaultPage).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	drives := make([]SharedDrive, 0, len(res.Drives))
	for _, d := range res.Drives {
		drives = append(drives, SharedDrive{ID: d.Id, Name: d.Name})
	}
	return drives, nil
}

func fileFromAPI(f *gdrive.File) File {
	out := File{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		Parents:     f.Parents,
		WebViewLink: f.WebViewLink,
		IsFolder:    f.MimeType == folderMimeType,
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			out.ModifiedTime = &t
		}
	}
	return out
}

// classify maps Drive API failures onto the package sentinels, keeping the original detail.
func classify(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "storageQuotaExceeded" {
			return fmt.Errorf("%w: %s", ErrQuotaExceeded, apiErr.Message)
		}
	}
	switch apiErr.Code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
	}
	return err
}

func escapeQuery(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}
