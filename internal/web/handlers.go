// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package web

import (
	"net/http"

	"github.com/samber/oops"

	"github.com/internhub/internhub/internal/auth"
)

type credentialsRequest struct {
	Role       string `json:"role"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type registerResponse struct {
	ID       string    `json:"id"`
	Role     auth.Role `json:"role"`
	Approved bool      `json:"approved"`
}

type tokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresIn    int64     `json:"expiresIn"`
	TokenType    string    `json:"tokenType"`
	ID           string    `json:"id,omitempty"`
	Role         auth.Role `json:"role,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func newTokenResponse(pair auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
		TokenType:    "Bearer",
	}
}

// decodeCredentials reads a role/identifier/password body.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (auth.Role, credentialsRequest, error) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", req, err
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return "", req, err
	}
	return role, req, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	role, req, err := decodeCredentials(w, r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	account, err := s.svc.Register(r.Context(), role, req.Identifier, req.Password)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		ID:       account.ID,
		Role:     account.Role,
		Approved: account.Approved,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	role, req, err := decodeCredentials(w, r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	result, err := s.svc.Login(r.Context(), role, req.Identifier, req.Password)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	resp := newTokenResponse(result.TokenPair)
	resp.ID = result.Identity.ID
	resp.Role = result.Identity.Role
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, s.logger, oops.Code(auth.CodeMissingCredential).Errorf("refresh token is required"))
		return
	}

	pair, err := s.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(*pair))
}

// handleLogout revokes the refresh token in the body, or every refresh token
// of the caller when the body is empty or omits it.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	token, _ := bearerToken(r.Header.Get("Authorization"))
	if err := s.svc.Logout(r.Context(), token, req.RefreshToken); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	token, _ := bearerToken(r.Header.Get("Authorization"))
	if err := s.svc.ChangeCredential(r.Context(), token, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, r, s.logger, oops.Code(auth.CodeMissingCredential).Errorf("no identity on request"))
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// handleApprove is the target of the one-click link sent to administrators.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, r, s.logger, oops.Code(auth.CodeMissingCredential).Errorf("approval token is required"))
		return
	}

	account, err := s.svc.Approve(r.Context(), token)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{
		ID:       account.ID,
		Role:     account.Role,
		Approved: account.Approved,
	})
}
