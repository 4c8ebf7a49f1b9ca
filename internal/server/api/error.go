// Package api holds the REST handlers. Each handler resolves everything
// through the gateway, so the principal installed by the middleware
// governs what it can see and touch.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"

	"github.com/pagegraph/pagegraph/internal/access"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/objects"
	"github.com/pagegraph/pagegraph/internal/schema"
)

// JSONError returns a JSON error response and adds the error to gin
// context for access logging.
func JSONError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, objects.ErrorResponse{
		Error: objects.Error{
			Type:    http.StatusText(status),
			Message: err.Error(),
		},
	})
}

// GatewayError maps a gateway failure onto the REST surface:
// authorization failures are 403, validation failures 422 with the
// offending key and token, missing entities 404.
func GatewayError(c *gin.Context, err error) {
	switch {
	case access.IsAuthorizationError(err):
		JSONError(c, http.StatusForbidden, err)
	case graph.IsNotFound(err):
		JSONError(c, http.StatusNotFound, err)
	default:
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			validationError(c, err)
			return
		}

		JSONError(c, http.StatusInternalServerError, err)
	}
}

func validationError(c *gin.Context, err error) {
	_ = c.Error(err)

	// Surface the first structured failure; the full set is in the
	// message.
	var first *schema.ValidationError

	for _, e := range multierr.Errors(err) {
		var verr *schema.ValidationError
		if errors.As(e, &verr) {
			first = verr
			break
		}
	}

	resp := objects.ErrorResponse{
		Error: objects.Error{
			Type:    http.StatusText(http.StatusUnprocessableEntity),
			Message: err.Error(),
		},
	}

	if first != nil {
		resp.Error.Key = first.Key
		resp.Error.Token = first.Token
	}

	c.JSON(http.StatusUnprocessableEntity, resp)
}
