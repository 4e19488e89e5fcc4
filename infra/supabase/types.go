// Package supabase provides REST clients for the Supabase services the
// loyalty platform uses: GoTrue auth, PostgREST profiles, and object storage
// for program artwork.
package supabase

import (
	"fmt"
	"time"
)

// Config holds Supabase client configuration.
type Config struct {
	// ProjectURL is the Supabase project URL (e.g., https://xxx.supabase.co)
	ProjectURL string

	// AnonKey is the public API key sent with every request.
	AnonKey string

	// ServiceKey is the service role key for operations that bypass RLS.
	ServiceKey string

	// Timeout for HTTP requests.
	Timeout time.Duration
}

// User represents a Supabase user.
type User struct {
	ID           string         `json:"id"`
	Aud          string         `json:"aud"`
	Role         string         `json:"role"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	ConfirmedAt  *time.Time     `json:"confirmed_at,omitempty"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Session represents an auth session.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// SignUpRequest for user registration.
type SignUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// Profile is a row in the profiles table, keyed by the auth user ID.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	Wallet      string    `json:"wallet,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// FileObject describes an uploaded storage object.
type FileObject struct {
	Key string `json:"Key"`
	ID  string `json:"Id,omitempty"`
}

// Error is a non-2xx response from a Supabase service.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("supabase: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("supabase: HTTP %d: %s", e.StatusCode, e.Message)
}
