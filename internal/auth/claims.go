// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import "github.com/golang-jwt/jwt/v5"

// Token type discriminators.
const (
	TokenTypeAccess   = "access"
	TokenTypeApproval = "approval"
)

// ApprovalAction is the only action an approval token authorizes.
const ApprovalAction = "approve_registration"

// AccessClaims are the claims of a signed access token.
type AccessClaims struct {
	Role Role   `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Identity returns the subject and role asserted by the token.
func (c *AccessClaims) Identity() Identity {
	return Identity{ID: c.Subject, Role: c.Role}
}

// ApprovalClaims are the claims of a signed registration approval token.
type ApprovalClaims struct {
	AccountType Role   `json:"account_type"`
	Action      string `json:"action"`
	Type        string `json:"type"`
	jwt.RegisteredClaims
}
