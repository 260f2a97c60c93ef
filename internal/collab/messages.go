package collab

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Iron-Ham/todohub/internal/errors"
	"github.com/Iron-Ham/todohub/internal/store"
	"github.com/Iron-Ham/todohub/internal/todo"
)

// Wire type discriminators.
const (
	TypeJoinCollection     = "JOIN_COLLECTION"
	TypeLockTodo           = "LOCK_TODO"
	TypeUnlockTodo         = "UNLOCK_TODO"
	TypeActiveUsersUpdated = "ACTIVE_USERS_UPDATED"
	TypeLocksUpdated       = "LOCKS_UPDATED"
	TypeTodoUpdated        = "TODO_UPDATED"
)

// -----------------------------------------------------------------------------
// Inbound
// -----------------------------------------------------------------------------

// Inbound is a message received from a client. The set of implementations
// is closed: JoinCollection, LockTodo and UnlockTodo.
type Inbound interface {
	MessageType() string
	inbound()
}

// JoinCollection binds the connection to a collection.
type JoinCollection struct {
	CollectionKey string `json:"collectionKey"`
}

// LockTodo asks for the advisory lock on a todo.
type LockTodo struct {
	TodoID        string `json:"todoId"`
	CollectionKey string `json:"collectionKey"`
}

// UnlockTodo gives the advisory lock on a todo back.
type UnlockTodo struct {
	TodoID        string `json:"todoId"`
	CollectionKey string `json:"collectionKey"`
}

func (JoinCollection) MessageType() string { return TypeJoinCollection }
func (LockTodo) MessageType() string       { return TypeLockTodo }
func (UnlockTodo) MessageType() string     { return TypeUnlockTodo }

func (JoinCollection) inbound() {}
func (LockTodo) inbound()       {}
func (UnlockTodo) inbound()     {}

// DecodeInbound parses one client frame.
//
// Frames that are not a JSON object fail with errors.ErrMalformedMessage.
// Unknown types fail with errors.ErrUnknownMessageType. Missing required
// fields fail with errors.ErrInvalidInput. All failures are *errors.ProtocolError.
func DecodeInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.NewProtocolError("frame is not a JSON object", errors.Join(errors.ErrMalformedMessage, err))
	}

	var msg Inbound
	var err error
	switch envelope.Type {
	case TypeJoinCollection:
		var m JoinCollection
		if err = decodeFields(data, &m); err == nil {
			err = requireField(envelope.Type, "collectionKey", m.CollectionKey)
		}
		msg = m
	case TypeLockTodo:
		var m LockTodo
		if err = decodeFields(data, &m); err == nil {
			err = errors.Join(
				requireField(envelope.Type, "todoId", m.TodoID),
				requireField(envelope.Type, "collectionKey", m.CollectionKey),
			)
		}
		msg = m
	case TypeUnlockTodo:
		var m UnlockTodo
		if err = decodeFields(data, &m); err == nil {
			err = errors.Join(
				requireField(envelope.Type, "todoId", m.TodoID),
				requireField(envelope.Type, "collectionKey", m.CollectionKey),
			)
		}
		msg = m
	default:
		return nil, errors.NewProtocolError("unknown message type", errors.ErrUnknownMessageType).
			WithMessageType(envelope.Type)
	}
	if err != nil {
		var perr *errors.ProtocolError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, errors.NewProtocolError("invalid message", err).WithMessageType(envelope.Type)
	}
	return msg, nil
}

// decodeFields unmarshals a frame into its variant. Field type mismatches
// count as malformed.
func decodeFields(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return errors.Join(errors.ErrMalformedMessage, err)
	}
	return nil
}

func requireField(msgType, field, value string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return errors.NewProtocolError(field+" is required", errors.ErrInvalidInput).WithMessageType(msgType)
}

// -----------------------------------------------------------------------------
// Outbound
// -----------------------------------------------------------------------------

// Outbound is a message pushed to clients. The set of implementations is
// closed: ActiveUsersUpdated, LocksUpdated and TodoUpdated. Each marshals
// to a JSON object with a "type" field.
type Outbound interface {
	MessageType() string
	outbound()
}

// ActiveUsersUpdated carries the distinct display names present in a
// collection.
type ActiveUsersUpdated struct {
	Users []string
}

// LocksUpdated carries todoID -> holder for locks held by others than the
// recipient.
type LocksUpdated struct {
	Locks map[string]string
}

// TodoUpdated announces a committed mutation.
type TodoUpdated struct {
	Todo   store.TodoView
	Action todo.Action
}

func (ActiveUsersUpdated) MessageType() string { return TypeActiveUsersUpdated }
func (LocksUpdated) MessageType() string       { return TypeLocksUpdated }
func (TodoUpdated) MessageType() string        { return TypeTodoUpdated }

func (ActiveUsersUpdated) outbound() {}
func (LocksUpdated) outbound()       {}
func (TodoUpdated) outbound()        {}

// MarshalJSON renders an empty list as [] rather than null.
func (m ActiveUsersUpdated) MarshalJSON() ([]byte, error) {
	users := m.Users
	if users == nil {
		users = []string{}
	}
	return json.Marshal(struct {
		Type  string   `json:"type"`
		Users []string `json:"users"`
	}{TypeActiveUsersUpdated, users})
}

// MarshalJSON renders an empty table as {} rather than null.
func (m LocksUpdated) MarshalJSON() ([]byte, error) {
	locks := m.Locks
	if locks == nil {
		locks = map[string]string{}
	}
	return json.Marshal(struct {
		Type  string            `json:"type"`
		Locks map[string]string `json:"locks"`
	}{TypeLocksUpdated, locks})
}

func (m TodoUpdated) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string         `json:"type"`
		Todo   store.TodoView `json:"todo"`
		Action todo.Action    `json:"action"`
	}{TypeTodoUpdated, m.Todo, m.Action})
}

// EncodeOutbound renders msg as one text frame.
func EncodeOutbound(msg Outbound) ([]byte, error) {
	return json.Marshal(msg)
}
