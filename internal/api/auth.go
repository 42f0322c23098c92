// Package api implements HTTP handlers and helpers for the field dispatch service.
package api

import (
    "net/http"
    "strings"
)

type Principal struct {
	Provider string
	Role     string // admin, dispatcher, worker
	WorkerID string
}

// getPrincipal extracts provider and role from JWT or headers.
// - If Authorization: Bearer is present, uses configured verifier (dev/hmac/jwks).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return Principal{Provider: pr.Provider, Role: pr.Role, WorkerID: pr.WorkerID}
        }
    }
    provider := r.Header.Get("X-Provider-Id")
    role := r.Header.Get("X-Role")
    workerID := r.Header.Get("X-Worker-Id")
    if provider == "" {
        provider = "p_demo"
    }
    if role == "" {
        role = "admin"
    }
    return Principal{Provider: provider, Role: role, WorkerID: workerID}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanDispatch reports whether the principal may trigger optimization runs.
func (p Principal) CanDispatch() bool { return p.Role == "admin" || p.Role == "dispatcher" }
