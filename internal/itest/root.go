//go:build integration

package itest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const modulePath = "github.com/forPelevin/phasesplit"

// findRepoRoot walks up to the go.mod declaring this module, so the CLI is
// always built from the same tree the tests live in.
func findRepoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		b, err := os.ReadFile(filepath.Join(wd, "go.mod"))
		if err == nil && bytes.Contains(b, []byte("module "+modulePath+"\n")) {
			return wd, nil
		}
		parent := filepath.Dir(wd)
		if parent == wd {
			return "", errors.New("could not locate the " + modulePath + " go.mod")
		}
		wd = parent
	}
}

func mustRepoRoot(t *testing.T) string {
	t.Helper()
	repoRoot, err := findRepoRoot()
	if err != nil {
		t.Fatalf("repo root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repoRoot, "cmd", "phasesplit")); err != nil {
		t.Fatalf("cli entry missing: %v", err)
	}
	return repoRoot
}
