package test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-delve/dlveval/pkg/config"
	"github.com/go-delve/dlveval/pkg/proc"
	"github.com/go-delve/dlveval/pkg/proc/snapshot"
)

// FindFixturesDir returns the path of the _fixtures directory, relative to
// the package being tested.
func FindFixturesDir() string {
	parent := ".."
	fixturesDir := "_fixtures"
	for depth := 0; depth < 10; depth++ {
		if _, err := os.Stat(fixturesDir); err == nil {
			break
		}
		fixturesDir = filepath.Join(parent, fixturesDir)
	}
	return fixturesDir
}

// FixturePath returns the path of the fixture file name.
func FixturePath(name string) string {
	return filepath.Join(FindFixturesDir(), name)
}

// LoadSnapshot loads the snapshot fixture name. Every call returns a fresh
// snapshot, tests are free to modify it.
func LoadSnapshot(t testing.TB, name string) *snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.Load(FixturePath(name))
	if err != nil {
		t.Fatalf("could not load fixture %s: %v", name, err)
	}
	return s
}

// WithTarget loads the snapshot fixture name and calls fn with a Target on
// it. A nil cfg uses the default configuration.
func WithTarget(t *testing.T, name string, cfg *config.Config, fn func(s *snapshot.Snapshot, tgt *proc.Target)) {
	t.Helper()
	s := LoadSnapshot(t, name)
	tgt, err := proc.NewTarget(s, s, cfg)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	fn(s, tgt)
}
