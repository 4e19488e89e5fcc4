package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

const userIDHeader = "X-User-ID"

// userID returns the authenticated user set by the auth middleware.
func userID(r *http.Request) string {
	return r.Header.Get(userIDHeader)
}

// CORSMiddleware allows the configured browser origins. Requests from other
// origins are rejected before they reach the API.
func CORSMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if o := strings.TrimSpace(origin); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if _, ok := allowed[origin]; !ok {
					if r.Method == http.MethodOptions {
						w.WriteHeader(http.StatusForbidden)
						return
					}
					http.Error(w, "CORS origin not allowed", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenVerifier resolves a bearer token to a user ID via the auth backend.
// It is the fallback when no local signing secret is configured.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type supabaseClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates Supabase-issued bearer tokens. With a JWT secret
// it verifies HS256 signatures locally; otherwise it defers to the verifier.
// The resolved user ID travels on the X-User-ID header.
func AuthMiddleware(jwtSecret []byte, verifier TokenVerifier, log *logger.Logger) mux.MiddlewareFunc {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Strip any client-supplied identity before authenticating.
			r.Header.Del(userIDHeader)

			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, fmt.Errorf("missing authorization"))
				return
			}

			var uid string
			var err error
			switch {
			case len(jwtSecret) > 0:
				uid, err = validateSupabaseJWT(token, jwtSecret)
			case verifier != nil:
				uid, err = verifier.VerifyToken(r.Context(), token)
			default:
				writeError(w, http.StatusInternalServerError, fmt.Errorf("auth not configured"))
				return
			}
			if err != nil {
				log.WithError(err).Debug("token rejected")
				writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token"))
				return
			}

			r.Header.Set(userIDHeader, uid)
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func validateSupabaseJWT(tokenString string, secret []byte) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &supabaseClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*supabaseClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}

// RateLimiter throttles requests per authenticated user, falling back to the
// client IP for anonymous endpoints.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a per-client limiter.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Middleware enforces the limit.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := userID(r)
		if key == "" {
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				key = host
			} else {
				key = r.RemoteAddr
			}
		}
		if !rl.limiterFor(key).Allow() {
			writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
