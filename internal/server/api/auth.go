package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagegraph/pagegraph/internal/auth"
	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/objects"
)

// AuthHandlers serves sign-in, sign-out and self-registration.
type AuthHandlers struct {
	users *auth.UserService
}

func NewAuthHandlers(users *auth.UserService) *AuthHandlers {
	return &AuthHandlers{users: users}
}

func (h *AuthHandlers) SignIn(c *gin.Context) {
	var req objects.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	session, err := h.users.SignIn(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		// Always the one generic message, whatever actually failed.
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	c.JSON(http.StatusOK, objects.SignInResponse{
		Token:     session.BearerToken,
		Principal: session.Principal.String(),
		Name:      session.Principal.Name,
	})
}

func (h *AuthHandlers) SignOut(c *gin.Context) {
	ctx := c.Request.Context()

	err := h.users.SignOut(ctx, authz.CurrentPrincipal(ctx))
	if err != nil {
		JSONError(c, http.StatusInternalServerError, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Register creates a user account. The route decides who may call it;
// the gateway checks the create permission of the acting principal.
func (h *AuthHandlers) Register(c *gin.Context) {
	var req objects.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	props := make(map[string]any, len(req.Extra)+1)
	for k, v := range req.Extra {
		props[k] = v
	}

	if req.Email != "" {
		props[authz.KeyEmail] = req.Email
	}

	user, err := h.users.Create(c.Request.Context(), "User", req.Name, req.Password, props)
	if err != nil {
		GatewayError(c, err)
		return
	}

	c.JSON(http.StatusCreated, objects.CreatedResponse{ID: user.ID})
}
