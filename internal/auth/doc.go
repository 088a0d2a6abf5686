// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

// Package auth provides authentication primitives for InternHub.
//
// # Domain Types
//
// Accounts are students or companies, distinguished by Role. New accounts
// should be created with NewAccount, which validates input and starts the
// account unapproved. An unapproved account never receives tokens.
//
// # Tokens
//
// TokenService issues three kinds of tokens:
//   - access tokens: short-lived HS256 JWTs carrying subject and role
//   - refresh tokens: random opaque values, stored only as SHA-256 digests
//   - approval tokens: JWTs with their own secret that approve a registration
//
// Refresh tokens are rotated on every use. RefreshTokenRepository.Rotate
// deactivates the old record and stores its successor atomically.
//
// # Services
//
// Service coordinates login, refresh, logout, password change, registration,
// and approval. Authenticate re-reads the account on every call, so approval
// changes apply before outstanding access tokens expire.
package auth
