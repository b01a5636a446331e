// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/holomush/authcore/internal/auth"
)

const (
	welcomeMessage         = "Bienvenue"
	invalidPasswordMessage = "invalid password"
)

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.instrument)

	router.HandleFunc("/", s.welcome).Methods(http.MethodGet)
	router.HandleFunc("/users", s.registerUser).Methods(http.MethodPost)
	router.HandleFunc("/sessions", s.login).Methods(http.MethodPost)
	router.HandleFunc("/sessions", s.logout).Methods(http.MethodDelete)
	router.HandleFunc("/profile", s.profile).Methods(http.MethodGet)
	router.HandleFunc("/reset_password", s.requestReset).Methods(http.MethodPost)
	router.HandleFunc("/reset_password", s.updatePassword).Methods(http.MethodPut)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.basicAuth)
	api.HandleFunc("/status", s.status).Methods(http.MethodGet)
	api.HandleFunc("/users/me", s.currentUser).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	})

	return router
}

// welcome handles GET /
func (s *Server) welcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

// registerUser handles POST /users
func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	email, password := r.FormValue("email"), r.FormValue("password")
	if email == "" {
		writeMessage(w, http.StatusBadRequest, "email is required")
		return
	}

	identity, err := s.service.Register(r.Context(), email, password)
	if errors.Is(err, auth.ErrDuplicateEmail) {
		writeMessage(w, http.StatusBadRequest, auth.ErrDuplicateEmail.Error())
		return
	}
	if errors.Is(err, auth.ErrInvalidPassword) {
		writeMessage(w, http.StatusBadRequest, invalidPasswordMessage)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": identity.Email, "message": "user created"})
}

// login handles POST /sessions
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	email, password := r.FormValue("email"), r.FormValue("password")

	ok, err := s.service.Login(r.Context(), email, password)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized)
		return
	}

	token, err := s.service.CreateSession(r.Context(), email)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: s.cookieName, Value: token, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"email": email, "message": "logged in"})
}

// logout handles DELETE /sessions
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.sessionIdentity(w, r)
	if !ok {
		return
	}

	if err := s.service.Logout(r.Context(), identity.ID); err != nil {
		s.internalError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: s.cookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

// profile handles GET /profile
func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.sessionIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": identity.Email})
}

// requestReset handles POST /reset_password
func (s *Server) requestReset(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")

	token, err := s.service.RequestPasswordReset(r.Context(), email)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, http.StatusForbidden)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": email, "reset_token": token})
}

// updatePassword handles PUT /reset_password
func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	token := r.FormValue("reset_token")
	password := r.FormValue("new_password")

	err := s.service.ResetPassword(r.Context(), token, password)
	if errors.Is(err, auth.ErrInvalidToken) {
		writeError(w, http.StatusForbidden)
		return
	}
	// The reset token is spent at this point; the client must request a new one.
	if errors.Is(err, auth.ErrInvalidPassword) {
		writeMessage(w, http.StatusBadRequest, invalidPasswordMessage)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": email, "message": "Password updated"})
}

// status handles GET /api/v1/status
func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// currentUser handles GET /api/v1/users/me
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":         identity.ID.String(),
		"email":      identity.Email,
		"created_at": identity.CreatedAt.Format(timeLayout),
		"updated_at": identity.UpdatedAt.Format(timeLayout),
	})
}

// sessionIdentity resolves the session cookie. On failure it writes 403 and
// returns false.
func (s *Server) sessionIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusForbidden)
		return nil, false
	}

	identity, err := s.service.ResolveSession(r.Context(), cookie.Value)
	if err != nil {
		s.internalError(w, r, err)
		return nil, false
	}
	if identity == nil {
		writeError(w, http.StatusForbidden)
		return nil, false
	}
	return identity, true
}
