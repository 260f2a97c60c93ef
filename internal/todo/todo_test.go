package todo

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/todohub/internal/auth"
	"github.com/Iron-Ham/todohub/internal/errors"
	"github.com/Iron-Ham/todohub/internal/status"
	"github.com/Iron-Ham/todohub/internal/store"
	"github.com/Iron-Ham/todohub/internal/testutil"
)

type recordingAnnouncer struct {
	mu    sync.Mutex
	calls []announcement
}

type announcement struct {
	View   store.TodoView
	Action Action
}

func (r *recordingAnnouncer) Announce(view store.TodoView, action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, announcement{View: view, Action: action})
}

func (r *recordingAnnouncer) Calls() []announcement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]announcement(nil), r.calls...)
}

type fixture struct {
	svc        *Service
	store      *store.Store
	announcer  *recordingAnnouncer
	alice, bob store.User
	collection store.Collection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, _ := testutil.NewStore(t)
	rec := &recordingAnnouncer{}
	alice := testutil.SeedUser(t, st, "alice")
	return &fixture{
		svc:        NewService(st, rec, nil),
		store:      st,
		announcer:  rec,
		alice:      alice,
		bob:        testutil.SeedUser(t, st, "bob"),
		collection: testutil.SeedCollection(t, st, alice),
	}
}

func (f *fixture) actor() auth.Identity {
	return auth.Identity{UserID: f.alice.ID, Name: f.alice.Name}
}

func (f *fixture) create(t *testing.T, st status.Status) store.TodoView {
	t.Helper()
	view, err := f.svc.Create(context.Background(), f.actor(), CreateInput{
		Text:          "buy milk",
		Status:        string(st),
		CollectionKey: f.collection.Key,
	})
	require.NoError(t, err)
	return view
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	view := f.create(t, status.Todo)
	assert.Equal(t, "buy milk", view.Text)
	assert.Equal(t, status.Todo, view.Status)
	assert.Equal(t, "alice", view.CreatedBy.Name)
	assert.Equal(t, "alice", view.AssignedTo.Name)

	calls := f.announcer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ActionCreate, calls[0].Action)
	assert.Equal(t, view, calls[0].View)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		in         CreateInput
		wantStatus int
	}{
		{"unknown status", CreateInput{Text: "x", Status: "BLOCKED", CollectionKey: f.collection.Key}, 400},
		{"missing collection key", CreateInput{Text: "x", Status: "TODO"}, 400},
		{"unknown collection", CreateInput{Text: "x", Status: "TODO", CollectionKey: "nope"}, 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.actor(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, errors.HTTPStatus(err))
		})
	}
	assert.Empty(t, f.announcer.Calls())
}

func TestUpdate_StatusTransitions(t *testing.T) {
	tests := []struct {
		from, to status.Status
		allowed  bool
	}{
		{status.Todo, status.Ongoing, true},
		{status.Ongoing, status.Done, true},
		{status.Done, status.Ongoing, true},
		{status.Ongoing, status.Todo, true},
		{status.Done, status.Done, true},
		{status.Todo, status.Done, false},
		{status.Done, status.Todo, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			f := newFixture(t)
			created := f.create(t, tt.from)

			view, err := f.svc.Update(context.Background(), created.ID, UpdateInput{
				Text:       "renamed",
				Status:     string(tt.to),
				AssignedTo: f.bob.ID,
			})

			calls := f.announcer.Calls()
			if !tt.allowed {
				var conflict *errors.ConflictError
				require.ErrorAs(t, err, &conflict)
				assert.Equal(t, string(tt.from), conflict.From)
				assert.Equal(t, string(tt.to), conflict.To)
				for _, next := range status.Next(tt.from) {
					assert.Contains(t, err.Error(), string(next), "conflict should name the allowed states")
				}
				assert.Len(t, calls, 1, "only the create is announced")

				stored, err := f.store.GetTodo(context.Background(), created.ID)
				require.NoError(t, err)
				assert.Equal(t, tt.from, stored.Status)
				assert.Equal(t, "buy milk", stored.Text)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.to, view.Status)
			assert.Equal(t, "renamed", view.Text)
			assert.Equal(t, "bob", view.AssignedTo.Name)
			assert.Equal(t, "alice", view.CreatedBy.Name)
			require.Len(t, calls, 2)
			assert.Equal(t, ActionUpdate, calls[1].Action)
		})
	}
}

func TestUpdate_Rejections(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, status.Todo)
	ctx := context.Background()

	tests := []struct {
		name       string
		id         string
		in         UpdateInput
		wantStatus int
	}{
		{"unknown todo", "missing", UpdateInput{Status: "TODO", AssignedTo: f.alice.ID}, 404},
		{"unknown status", created.ID, UpdateInput{Status: "LATER", AssignedTo: f.alice.ID}, 400},
		{"missing assignee", created.ID, UpdateInput{Status: "TODO"}, 400},
		{"unknown assignee", created.ID, UpdateInput{Status: "TODO", AssignedTo: "ghost"}, 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Update(ctx, tt.id, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, errors.HTTPStatus(err))
		})
	}
	assert.Len(t, f.announcer.Calls(), 1)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, status.Ongoing)
	ctx := context.Background()

	view, err := f.svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, view.ID)

	calls := f.announcer.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, ActionDelete, calls[1].Action)
	assert.Equal(t, created.ID, calls[1].View.ID)
	assert.Equal(t, f.collection.Key, calls[1].View.CollectionKey)

	_, err = f.svc.Delete(ctx, created.ID)
	assert.Equal(t, 404, errors.HTTPStatus(err))
	assert.Len(t, f.announcer.Calls(), 2)
}

func TestNilAnnouncer(t *testing.T) {
	st, _ := testutil.NewStore(t)
	alice := testutil.SeedUser(t, st, "alice")
	c := testutil.SeedCollection(t, st, alice)
	svc := NewService(st, nil, nil)

	_, err := svc.Create(context.Background(), auth.Identity{UserID: alice.ID, Name: alice.Name}, CreateInput{
		Text: "x", Status: "TODO", CollectionKey: c.Key,
	})
	assert.NoError(t, err)
}
