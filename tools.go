// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

//go:build tools

// Package main pins test dependencies that are only imported behind build
// tags, so that go mod tidy keeps them in go.mod.
package main

import (
	// Integration tests (integration build tag)
	_ "github.com/testcontainers/testcontainers-go"
	_ "github.com/testcontainers/testcontainers-go/modules/postgres"

	// Unit test helpers
	_ "github.com/pashagolub/pgxmock/v4"
	_ "go.uber.org/goleak"
)
