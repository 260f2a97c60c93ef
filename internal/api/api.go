// Package api exposes the todohub HTTP API: login, collections and the todo
// mutation endpoints, plus the websocket upgrade path.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Iron-Ham/todohub/internal/auth"
	"github.com/Iron-Ham/todohub/internal/logging"
	"github.com/Iron-Ham/todohub/internal/store"
	"github.com/Iron-Ham/todohub/internal/todo"
)

// Store is the read side and account persistence the API needs.
type Store interface {
	Ping(ctx context.Context) error
	LoginOrCreate(ctx context.Context, name string) (store.User, error)
	CreateCollection(ctx context.Context, ownerID string) (store.Collection, error)
	GetCollection(ctx context.Context, key string) (store.Collection, error)
	ListCollections(ctx context.Context, ownerID string) ([]store.Collection, error)
	CollectionTodos(ctx context.Context, key string) ([]store.TodoView, error)
}

// Todos is the authoritative todo mutation path.
type Todos interface {
	Create(ctx context.Context, actor auth.Identity, in todo.CreateInput) (store.TodoView, error)
	Update(ctx context.Context, id string, in todo.UpdateInput) (store.TodoView, error)
	Delete(ctx context.Context, id string) (store.TodoView, error)
}

// Tokens issues and verifies bearer credentials.
type Tokens interface {
	Issue(id auth.Identity) (string, error)
	Verify(token string) (auth.Identity, error)
}

// Options configures the router.
type Options struct {
	Store  Store
	Todos  Todos
	Tokens Tokens
	// WSPath and WSHandler mount the websocket upgrade. Both or neither.
	WSPath    string
	WSHandler http.Handler
	// Mode is the gin mode: release, debug or test. Empty leaves it unchanged.
	Mode   string
	Logger *logging.Logger
}

// AreValid reports the first missing collaborator.
func (o *Options) AreValid() error {
	if o.Store == nil {
		return fmt.Errorf("store is required")
	}
	if o.Todos == nil {
		return fmt.Errorf("todo service is required")
	}
	if o.Tokens == nil {
		return fmt.Errorf("token issuer is required")
	}
	if (o.WSPath == "") != (o.WSHandler == nil) {
		return fmt.Errorf("websocket path and handler must be set together")
	}
	return nil
}

// Api serves the HTTP routes.
type Api struct {
	store  Store
	todos  Todos
	tokens Tokens
	logger *logging.Logger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(o Options) (*gin.Engine, error) {
	if err := o.AreValid(); err != nil {
		return nil, fmt.Errorf("invalid API options: %w", err)
	}
	if o.Mode != "" {
		gin.SetMode(o.Mode)
	}
	logger := o.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	a := &Api{store: o.Store, todos: o.Todos, tokens: o.Tokens, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), a.accessLog())

	router.GET("/healthz", a.health)
	router.POST("/auth", a.login)
	if o.WSHandler != nil {
		router.GET(o.WSPath, gin.WrapH(o.WSHandler))
	}

	authed := router.Group("/", a.requireIdentity())
	authed.GET("/collections", a.listCollections)
	authed.POST("/collections", a.createCollection)
	authed.GET("/collections/:key", a.getCollection)
	authed.POST("/todos", a.createTodo)
	authed.PATCH("/todos/:id", a.updateTodo)
	authed.DELETE("/todos/:id", a.deleteTodo)

	return router, nil
}

// accessLog writes one DEBUG line per request, WARN for server errors.
func (a *Api) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if status >= http.StatusInternalServerError {
			a.logger.Warn("request failed", append(args, "errors", c.Errors.String())...)
			return
		}
		a.logger.Debug("request", args...)
	}
}
