package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Iron-Ham/todohub/internal/errors"
)

// maxTxAttempts bounds optimistic transaction retries in UpdateTodo.
const maxTxAttempts = 3

// Store provides Redis-backed persistence. It is safe for concurrent use.
type Store struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store connected with redisOpts. Keys are namespaced with
// prefix, which must not be empty.
func New(redisOpts *redis.Options, prefix string, opts ...Option) (*Store, error) {
	if prefix == "" {
		return nil, errors.NewValidationError("key prefix cannot be empty").WithField("key_prefix")
	}
	s := &Store{
		rdb:    redis.NewClient(redisOpts),
		prefix: prefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return errors.NewStoreError("ping", errors.Join(errors.ErrStoreUnavailable, err)).WithOp("PING")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

// LoginOrCreate returns the user called name, creating it on first use.
// Concurrent first logins under the same name resolve to a single user.
func (s *Store) LoginOrCreate(ctx context.Context, name string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, errors.NewValidationError("name is required").WithField("name")
	}

	index := UsersByNameKey(s.prefix)
	id, err := s.rdb.HGet(ctx, index, name).Result()
	switch {
	case err == nil:
		return s.GetUser(ctx, id)
	case !errors.Is(err, redis.Nil):
		return User{}, errors.NewStoreError("look up user", err).WithOp("HGET").WithKey(index)
	}

	// Write the record before claiming the name so a winner's id always
	// resolves to a complete user.
	u := User{ID: uuid.NewString(), Name: name, CreatedAt: s.now().UTC().Truncate(time.Millisecond)}
	key := UserKey(s.prefix, u.ID)
	if err := s.rdb.HSet(ctx, key, userToHash(u)).Err(); err != nil {
		return User{}, errors.NewStoreError("write user", err).WithOp("HSET").WithKey(key)
	}

	won, err := s.rdb.HSetNX(ctx, index, name, u.ID).Result()
	if err != nil {
		return User{}, errors.NewStoreError("claim user name", err).WithOp("HSETNX").WithKey(index)
	}
	if won {
		return u, nil
	}

	// Someone else registered the name first.
	s.rdb.Del(ctx, key)
	id, err = s.rdb.HGet(ctx, index, name).Result()
	if err != nil {
		return User{}, errors.NewStoreError("look up user", err).WithOp("HGET").WithKey(index)
	}
	return s.GetUser(ctx, id)
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	hash, err := s.readHash(ctx, "user", id, UserKey(s.prefix, id))
	if err != nil {
		return User{}, err
	}
	u, err := hashToUser(hash)
	if err != nil {
		return User{}, corrupt("user", UserKey(s.prefix, id), err)
	}
	return u, nil
}

// -----------------------------------------------------------------------------
// Collections
// -----------------------------------------------------------------------------

// CreateCollection creates a collection owned by ownerID under a fresh
// lowercase ULID key.
func (s *Store) CreateCollection(ctx context.Context, ownerID string) (Collection, error) {
	if _, err := s.GetUser(ctx, ownerID); err != nil {
		return Collection{}, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	c := Collection{
		Key:         strings.ToLower(ulid.Make().String()),
		CreatedByID: ownerID,
		CreatedAt:   now,
	}

	key := CollectionKey(s.prefix, c.Key)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, collectionToHash(c))
		pipe.ZAdd(ctx, UserCollectionsKey(s.prefix, ownerID), redis.Z{Score: float64(now.UnixMilli()), Member: c.Key})
		return nil
	})
	if err != nil {
		return Collection{}, errors.NewStoreError("write collection", err).WithOp("MULTI").WithKey(key)
	}
	return c, nil
}

// GetCollection returns the collection with the given key.
func (s *Store) GetCollection(ctx context.Context, key string) (Collection, error) {
	hash, err := s.readHash(ctx, "collection", key, CollectionKey(s.prefix, key))
	if err != nil {
		return Collection{}, err
	}
	c, err := hashToCollection(hash)
	if err != nil {
		return Collection{}, corrupt("collection", CollectionKey(s.prefix, key), err)
	}
	return c, nil
}

// ListCollections returns the collections created by ownerID, oldest first.
func (s *Store) ListCollections(ctx context.Context, ownerID string) ([]Collection, error) {
	index := UserCollectionsKey(s.prefix, ownerID)
	keys, err := s.rdb.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, errors.NewStoreError("list collections", err).WithOp("ZRANGE").WithKey(index)
	}

	hashes, err := s.readHashes(ctx, keys, func(k string) string { return CollectionKey(s.prefix, k) })
	if err != nil {
		return nil, err
	}

	out := make([]Collection, 0, len(hashes))
	for i, hash := range hashes {
		if len(hash) == 0 {
			continue
		}
		c, err := hashToCollection(hash)
		if err != nil {
			return nil, corrupt("collection", CollectionKey(s.prefix, keys[i]), err)
		}
		out = append(out, c)
	}
	return out, nil
}

// CollectionTodos returns the joined todos of a collection, oldest first.
func (s *Store) CollectionTodos(ctx context.Context, key string) ([]TodoView, error) {
	if _, err := s.GetCollection(ctx, key); err != nil {
		return nil, err
	}

	index := CollectionTodosKey(s.prefix, key)
	ids, err := s.rdb.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, errors.NewStoreError("list todos", err).WithOp("ZRANGE").WithKey(index)
	}

	hashes, err := s.readHashes(ctx, ids, func(id string) string { return TodoKey(s.prefix, id) })
	if err != nil {
		return nil, err
	}

	users := make(map[string]User)
	out := make([]TodoView, 0, len(hashes))
	for i, hash := range hashes {
		if len(hash) == 0 {
			continue
		}
		t, err := hashToTodo(hash)
		if err != nil {
			return nil, corrupt("todo", TodoKey(s.prefix, ids[i]), err)
		}
		view, err := s.join(ctx, t, users)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Todos
// -----------------------------------------------------------------------------

// CreateTodo stores t under a fresh id and returns the stored record. The
// collection and both referenced users must exist.
func (s *Store) CreateTodo(ctx context.Context, t Todo) (Todo, error) {
	if !t.Status.Valid() {
		return Todo{}, errors.NewValidationError("unknown status").WithField("status").WithValue(string(t.Status))
	}
	if _, err := s.GetCollection(ctx, t.CollectionKey); err != nil {
		return Todo{}, err
	}
	if _, err := s.GetUser(ctx, t.CreatedByID); err != nil {
		return Todo{}, err
	}
	if t.AssignedToID != t.CreatedByID {
		if _, err := s.GetUser(ctx, t.AssignedToID); err != nil {
			return Todo{}, err
		}
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now

	key := TodoKey(s.prefix, t.ID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, todoToHash(t))
		pipe.ZAdd(ctx, CollectionTodosKey(s.prefix, t.CollectionKey), redis.Z{Score: float64(now.UnixMilli()), Member: t.ID})
		return nil
	})
	if err != nil {
		return Todo{}, errors.NewStoreError("write todo", err).WithOp("MULTI").WithKey(key)
	}
	return t, nil
}

// GetTodo returns the todo with the given id.
func (s *Store) GetTodo(ctx context.Context, id string) (Todo, error) {
	key := TodoKey(s.prefix, id)
	hash, err := s.readHash(ctx, "todo", id, key)
	if err != nil {
		return Todo{}, err
	}
	t, err := hashToTodo(hash)
	if err != nil {
		return Todo{}, corrupt("todo", key, err)
	}
	return t, nil
}

// UpdateTodo applies mutate to the current record of todo id and writes the
// result back. The read and the write form one optimistic transaction: if
// the todo changes in between, mutate runs again on the fresh record. An
// error from mutate aborts the update and is returned as is.
//
// Only text, status and assignee are taken from the mutated record.
func (s *Store) UpdateTodo(ctx context.Context, id string, mutate func(*Todo) error) (Todo, error) {
	key := TodoKey(s.prefix, id)
	var updated Todo
	var mutateErr error

	txf := func(tx *redis.Tx) error {
		hash, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return errors.NewStoreError("read todo", err).WithOp("HGETALL").WithKey(key)
		}
		if len(hash) == 0 {
			return errors.NewNotFoundError("todo", id)
		}
		current, err := hashToTodo(hash)
		if err != nil {
			return corrupt("todo", key, err)
		}

		next := current
		if mutateErr = mutate(&next); mutateErr != nil {
			return mutateErr
		}
		if !next.Status.Valid() {
			return errors.NewValidationError("unknown status").WithField("status").WithValue(string(next.Status))
		}
		current.Text = next.Text
		current.Status = next.Status
		current.AssignedToID = next.AssignedToID
		current.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, todoToHash(current))
			return nil
		})
		if err == nil {
			updated = current
		}
		return err
	}

	for range maxTxAttempts {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if mutateErr != nil {
			return Todo{}, mutateErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var appErr errors.AppError
		if errors.As(err, &appErr) {
			return Todo{}, err
		}
		return Todo{}, errors.NewStoreError("update todo", err).WithOp("WATCH").WithKey(key)
	}
	return Todo{}, errors.NewStoreError("update todo", redis.TxFailedErr).WithOp("WATCH").WithKey(key)
}

// DeleteTodo removes a todo and its collection index entry.
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	t, err := s.GetTodo(ctx, id)
	if err != nil {
		return err
	}

	key := TodoKey(s.prefix, id)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, CollectionTodosKey(s.prefix, t.CollectionKey), id)
		return nil
	})
	if err != nil {
		return errors.NewStoreError("delete todo", err).WithOp("MULTI").WithKey(key)
	}
	return nil
}

// TodoView returns the todo joined with its assignee and creator.
func (s *Store) TodoView(ctx context.Context, id string) (TodoView, error) {
	t, err := s.GetTodo(ctx, id)
	if err != nil {
		return TodoView{}, err
	}
	return s.join(ctx, t, make(map[string]User))
}

// join resolves the users referenced by t, consulting and filling cache.
func (s *Store) join(ctx context.Context, t Todo, cache map[string]User) (TodoView, error) {
	lookup := func(id string) (User, error) {
		if u, ok := cache[id]; ok {
			return u, nil
		}
		u, err := s.GetUser(ctx, id)
		if err != nil {
			return User{}, err
		}
		cache[id] = u
		return u, nil
	}

	assignee, err := lookup(t.AssignedToID)
	if err != nil {
		return TodoView{}, err
	}
	creator, err := lookup(t.CreatedByID)
	if err != nil {
		return TodoView{}, err
	}
	return TodoView{Todo: t, AssignedTo: assignee, CreatedBy: creator}, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *Store) readHash(ctx context.Context, resource, id, key string) (map[string]string, error) {
	hash, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.NewStoreError("read "+resource, err).WithOp("HGETALL").WithKey(key)
	}
	if len(hash) == 0 {
		return nil, errors.NewNotFoundError(resource, id)
	}
	return hash, nil
}

// readHashes fetches many hashes in one round trip. Missing hashes come back
// as empty maps at their index.
func (s *Store) readHashes(ctx context.Context, ids []string, keyOf func(string) string) ([]map[string]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, keyOf(id))
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewStoreError("read records", err).WithOp("HGETALL")
	}

	out := make([]map[string]string, len(cmds))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

func corrupt(resource, key string, cause error) error {
	return errors.NewStoreError("decode "+resource, errors.Join(errors.ErrCorruptRecord, cause)).
		WithKey(key).
		WithRetryable(false)
}
