package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Iron-Ham/todohub/internal/auth"
	"github.com/Iron-Ham/todohub/internal/errors"
	"github.com/Iron-Ham/todohub/internal/store"
	"github.com/Iron-Ham/todohub/internal/todo"
)

type loginRequest struct {
	Name string `json:"name"`
}

type collectionResponse struct {
	store.Collection
	Todos []store.TodoView `json:"todos"`
}

func (a *Api) health(c *gin.Context) {
	if err := a.store.Ping(c.Request.Context()); err != nil {
		a.logger.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *Api) login(c *gin.Context) {
	var req loginRequest
	if !a.bind(c, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		a.fail(c, errors.NewValidationError("name is required").WithField("name"))
		return
	}

	user, err := a.store.LoginOrCreate(c.Request.Context(), req.Name)
	if err != nil {
		a.fail(c, err)
		return
	}
	token, err := a.tokens.Issue(auth.Identity{UserID: user.ID, Name: user.Name})
	if err != nil {
		a.fail(c, err)
		return
	}

	a.logger.WithUser(user.Name).Info("user logged in", "user_id", user.ID)
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (a *Api) listCollections(c *gin.Context) {
	collections, err := a.store.ListCollections(c.Request.Context(), identity(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	if collections == nil {
		collections = []store.Collection{}
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

func (a *Api) createCollection(c *gin.Context) {
	collection, err := a.store.CreateCollection(c.Request.Context(), identity(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "collection": collection})
}

func (a *Api) getCollection(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")

	collection, err := a.store.GetCollection(ctx, key)
	if err != nil {
		a.fail(c, err)
		return
	}
	todos, err := a.store.CollectionTodos(ctx, key)
	if err != nil {
		a.fail(c, err)
		return
	}
	if todos == nil {
		todos = []store.TodoView{}
	}
	c.JSON(http.StatusOK, collectionResponse{Collection: collection, Todos: todos})
}

func (a *Api) createTodo(c *gin.Context) {
	var in todo.CreateInput
	if !a.bind(c, &in) {
		return
	}
	view, err := a.todos.Create(c.Request.Context(), identity(c), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "todo": view})
}

func (a *Api) updateTodo(c *gin.Context) {
	var in todo.UpdateInput
	if !a.bind(c, &in) {
		return
	}
	view, err := a.todos.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "todo": view})
}

func (a *Api) deleteTodo(c *gin.Context) {
	if _, err := a.todos.Delete(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// bind decodes the JSON body, rendering a 400 on failure.
func (a *Api) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		a.fail(c, errors.NewValidationError("malformed request body").WithCause(err))
		return false
	}
	return true
}
