// Package todo runs bulk mutations over a user's todos.
package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"taskhub/api/internal/store"
)

type Op string

const (
	OpComplete Op = "complete"
	OpDelete   Op = "delete"
)

const (
	maxConcurrent = 8
	MaxBatch      = 200
)

var (
	ErrSomeFailed = errors.New("some items failed")
	ErrEmptyBatch = errors.New("no todo ids given")
	ErrUnknownOp  = errors.New("unknown bulk operation")
	ErrTooMany    = fmt.Errorf("at most %d todos per batch", MaxBatch)
)

func ParseOp(value string) (Op, error) {
	switch Op(strings.ToLower(strings.TrimSpace(value))) {
	case OpComplete:
		return OpComplete, nil
	case OpDelete:
		return OpDelete, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownOp, value)
	}
}

type Store interface {
	ListTodos(ctx context.Context, userID string) ([]store.Todo, error)
	CompleteTodo(ctx context.Context, userID, todoID string) error
	DeleteTodo(ctx context.Context, userID, todoID string) error
}

type Service struct {
	store Store
}

func NewService(st Store) *Service {
	return &Service{store: st}
}

func (s *Service) List(ctx context.Context, userID string) ([]store.Todo, error) {
	return s.store.ListTodos(ctx, userID)
}

type Result struct {
	Todos     []store.Todo `json:"todos"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// Bulk applies op to every id concurrently. Items succeed or fail independently and nothing is
// rolled back. The list is always re-read afterwards. When any item failed the error is
// ErrSomeFailed, without naming which.
func (s *Service) Bulk(ctx context.Context, userID string, op Op, ids []string) (Result, error) {
	if op != OpComplete && op != OpDelete {
		return Result{}, fmt.Errorf("%w %q", ErrUnknownOp, op)
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return Result{}, ErrEmptyBatch
	}
	if len(ids) > MaxBatch {
		return Result{}, fmt.Errorf("%w: got %d", ErrTooMany, len(ids))
	}

	failures := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, id := range ids {
		g.Go(func() error {
			// Each item records its own outcome; returning nil keeps gctx alive for the rest.
			switch op {
			case OpComplete:
				failures[i] = s.store.CompleteTodo(gctx, userID, id)
			case OpDelete:
				failures[i] = s.store.DeleteTodo(gctx, userID, id)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{}
	for i, err := range failures {
		if err != nil {
			res.Failed++
			logrus.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"todo_id": ids[i],
				"op":      op,
			}).Warn("bulk todo item failed")
			continue
		}
		res.Succeeded++
	}

	todos, err := s.store.ListTodos(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("reload todos: %w", err)
	}
	res.Todos = todos
	if res.Failed > 0 {
		return res, ErrSomeFailed
	}
	return res, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
