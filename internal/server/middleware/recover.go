// Package middleware holds the gin middleware: panic recovery, access
// logging, and principal resolution.
package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagegraph/pagegraph/internal/log"
	"github.com/pagegraph/pagegraph/internal/objects"
)

// Recovery converts panics into a 500 response with a logged stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(c.Request.Context(), "panic recovered",
					log.Any("panic", r),
					log.String("path", c.Request.URL.Path),
					log.Stack("stack"),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, objects.ErrorResponse{
					Error: objects.Error{
						Type:    http.StatusText(http.StatusInternalServerError),
						Message: fmt.Sprintf("%v", r),
					},
				})
			}
		}()

		c.Next()
	}
}
