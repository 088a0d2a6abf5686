// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const testSecret = "q7#Nw2!Lp9@Zx4$Rt6^Vb1&Hm8*Kd3%J"

// isolateEnv points every configuration source at a temp dir and returns the
// store path the file driver will use.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, name := range []string{
		"NODE_ENV", "PORT", "BACKEND_URL", "JWT_SECRET", "APPROVAL_TOKEN_SECRET",
		"JWT_EXPIRES_IN", "APPROVAL_TOKEN_EXPIRES_IN", "DATABASE_URL",
	} {
		t.Setenv(name, "")
	}
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "INTERNHUB_") {
			t.Setenv(name, "")
		}
	}
	t.Setenv("INTERNHUB_LOG__LEVEL", "error")
	t.Setenv("INTERNHUB_AUTH__BCRYPT_COST", "4")
	return filepath.Join(dir, "data", "internhub", "db.json")
}

// execute runs cmd with args and returns everything it printed.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}
