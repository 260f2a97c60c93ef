package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Iron-Ham/todohub/internal/auth"
	"github.com/Iron-Ham/todohub/internal/errors"
)

const identityKey = "todohub.identity"

// requireIdentity verifies the bearer credential and stores the identity on
// the context.
func (a *Api) requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var id auth.Identity
			if id, err = a.tokens.Verify(token); err == nil {
				c.Set(identityKey, id)
				c.Next()
				return
			}
		}
		a.fail(c, err)
	}
}

func identity(c *gin.Context) auth.Identity {
	id, _ := c.MustGet(identityKey).(auth.Identity)
	return id
}

// fail renders err as {success:false, error}. Internal details stay in the
// log.
func (a *Api) fail(c *gin.Context, err error) {
	code := errors.HTTPStatus(err)
	msg := http.StatusText(code)
	if errors.IsUserFacing(err) {
		msg = err.Error()
	}
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(code, gin.H{"success": false, "error": msg})
}
