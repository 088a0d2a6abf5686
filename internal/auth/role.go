// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import (
	"strings"

	"github.com/samber/oops"
)

// Role is the account type tag. It is fixed when the account is created.
type Role string

// Known roles.
const (
	RoleStudent Role = "student"
	RoleCompany Role = "company"
)

// legacyRoles maps role tags written by the previous store format.
var legacyRoles = map[string]Role{
	"estudiante": RoleStudent,
	"empresa":    RoleCompany,
}

// ParseRole converts a role name to a Role.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch Role(name) {
	case RoleStudent, RoleCompany:
		return Role(name), nil
	}
	if r, ok := legacyRoles[name]; ok {
		return r, nil
	}
	return "", oops.Code(CodeInvalidInput).
		With("role", s).
		Errorf("unknown role %q", s)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleCompany
}

func (r Role) String() string {
	return string(r)
}

// Roles returns every known role.
func Roles() []Role {
	return []Role{RoleStudent, RoleCompany}
}
