// Package objects holds the REST wire objects.
package objects

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	// Key carries the offending property key of a validation failure.
	Key string `json:"key,omitempty"`
	// Token is the machine-readable validation token.
	Token string `json:"token,omitempty"`
}

// EntityResponse is the REST rendering of a graph entity: the visible
// subset of its properties for the requesting principal.
type EntityResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

type EntityListResponse struct {
	Result []EntityResponse `json:"result"`
}

type CreateEntityRequest struct {
	Properties map[string]any `json:"properties"`
}

type UpdateEntityRequest struct {
	Properties map[string]any `json:"properties"`
}

type CreatedResponse struct {
	ID string `json:"id"`
}

type SignInRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type SignInResponse struct {
	Token     string `json:"token"`
	Principal string `json:"principal"`
	Name      string `json:"name,omitempty"`
}

type RegisterRequest struct {
	Name     string         `json:"name"`
	Password string         `json:"password"`
	Email    string         `json:"email,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type MaintenanceRequest struct {
	Attributes map[string]any `json:"attributes"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
