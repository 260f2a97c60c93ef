// Package todo is the authoritative mutation path for todos. Every committed
// create, update or delete is announced to live collaborators.
package todo

import (
	"context"
	"strings"

	"github.com/Iron-Ham/todohub/internal/auth"
	"github.com/Iron-Ham/todohub/internal/errors"
	"github.com/Iron-Ham/todohub/internal/logging"
	"github.com/Iron-Ham/todohub/internal/status"
	"github.com/Iron-Ham/todohub/internal/store"
)

// Action names the kind of committed mutation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Announcer receives every committed mutation. Announce must not block.
type Announcer interface {
	Announce(view store.TodoView, action Action)
}

// Store is the persistence the service needs.
type Store interface {
	GetUser(ctx context.Context, id string) (store.User, error)
	CreateTodo(ctx context.Context, t store.Todo) (store.Todo, error)
	UpdateTodo(ctx context.Context, id string, mutate func(*store.Todo) error) (store.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
	TodoView(ctx context.Context, id string) (store.TodoView, error)
}

// CreateInput is the payload of a create.
type CreateInput struct {
	Text          string `json:"text"`
	Status        string `json:"status"`
	CollectionKey string `json:"collectionKey"`
}

// UpdateInput is the payload of an update. All fields are required, which
// mirrors a full-record edit form.
type UpdateInput struct {
	Text       string `json:"text"`
	Status     string `json:"status"`
	AssignedTo string `json:"assignedTo"`
}

// Service validates and commits todo mutations.
type Service struct {
	store     Store
	announcer Announcer
	logger    *logging.Logger
}

// NewService creates a Service. A nil announcer disables announcements and a
// nil logger disables logging.
func NewService(st Store, announcer Announcer, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Service{store: st, announcer: announcer, logger: logger}
}

// Create stores a new todo created by and assigned to actor.
func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (store.TodoView, error) {
	st, err := status.Parse(in.Status)
	if err != nil {
		return store.TodoView{}, errors.NewValidationError("unknown status").WithField("status").WithValue(in.Status).WithCause(err)
	}
	key := strings.TrimSpace(in.CollectionKey)
	if key == "" {
		return store.TodoView{}, errors.NewValidationError("collectionKey is required").WithField("collectionKey")
	}

	created, err := s.store.CreateTodo(ctx, store.Todo{
		Text:          in.Text,
		Status:        st,
		CollectionKey: key,
		CreatedByID:   actor.UserID,
		AssignedToID:  actor.UserID,
	})
	if err != nil {
		return store.TodoView{}, err
	}

	return s.commit(ctx, created.ID, ActionCreate)
}

// Update replaces text, status and assignee of todo id. A status change the
// transition table does not allow is rejected with a *errors.ConflictError
// before anything is written or announced.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (store.TodoView, error) {
	next, err := status.Parse(in.Status)
	if err != nil {
		return store.TodoView{}, errors.NewValidationError("unknown status").WithField("status").WithValue(in.Status).WithCause(err)
	}
	if strings.TrimSpace(in.AssignedTo) == "" {
		return store.TodoView{}, errors.NewValidationError("assignedTo is required").WithField("assignedTo")
	}
	if _, err := s.store.GetUser(ctx, in.AssignedTo); err != nil {
		return store.TodoView{}, err
	}

	_, err = s.store.UpdateTodo(ctx, id, func(t *store.Todo) error {
		if !status.IsAllowed(t.Status, next) {
			return transitionConflict(t.Status, next)
		}
		t.Text = in.Text
		t.Status = next
		t.AssignedToID = in.AssignedTo
		return nil
	})
	if err != nil {
		var conflict *errors.ConflictError
		if errors.As(err, &conflict) {
			s.logger.Info("rejected status change", "todo_id", id, "from", conflict.From, "to", conflict.To)
		}
		return store.TodoView{}, err
	}

	return s.commit(ctx, id, ActionUpdate)
}

// transitionConflict reports a forbidden status change along with the states
// the todo may move to instead.
func transitionConflict(from, to status.Status) *errors.ConflictError {
	next := status.Next(from)
	allowed := make([]string, len(next))
	for i, s := range next {
		allowed[i] = s.String()
	}
	msg := "invalid status change, " + from.String() + " may move to " + strings.Join(allowed, " or ")
	return errors.NewConflictError(msg).WithTransition(from.String(), to.String())
}

// Delete removes todo id. The projection announced is the one read just
// before deletion.
func (s *Service) Delete(ctx context.Context, id string) (store.TodoView, error) {
	view, err := s.store.TodoView(ctx, id)
	if err != nil {
		return store.TodoView{}, err
	}
	if err := s.store.DeleteTodo(ctx, id); err != nil {
		return store.TodoView{}, err
	}

	s.announce(view, ActionDelete)
	return view, nil
}

// commit loads the joined projection of a written todo and announces it.
func (s *Service) commit(ctx context.Context, id string, action Action) (store.TodoView, error) {
	view, err := s.store.TodoView(ctx, id)
	if err != nil {
		return store.TodoView{}, errors.Wrapf(err, "load %s todo", action)
	}
	s.announce(view, action)
	return view, nil
}

func (s *Service) announce(view store.TodoView, action Action) {
	s.logger.WithCollection(view.CollectionKey).Debug("todo committed", "todo_id", view.ID, "action", string(action))
	if s.announcer != nil {
		s.announcer.Announce(view, action)
	}
}
