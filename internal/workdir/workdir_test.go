package workdir

import (
	"os"
	"path/filepath"
	"testing"
)

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func assertSamePath(t *testing.T, want, got string) {
	t.Helper()
	wantEval, err := filepath.EvalSymlinks(want)
	if err != nil {
		t.Fatalf("eval %s: %v", want, err)
	}
	gotEval, err := filepath.EvalSymlinks(got)
	if err != nil {
		t.Fatalf("eval %s: %v", got, err)
	}
	if wantEval != gotEval {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestResolveBaseDir_FindsStudioFromSubdir(t *testing.T) {
	studio := t.TempDir()
	mkdir(t, filepath.Join(studio, ".yoga"))
	subdir := filepath.Join(studio, "flyers", "2026")
	mkdir(t, subdir)

	assertSamePath(t, studio, ResolveBaseDir(subdir))
}

func TestResolveBaseDir_NoMarkerReturnsStart(t *testing.T) {
	start := filepath.Join(t.TempDir(), "empty", "dir")
	mkdir(t, start)

	if got := ResolveBaseDir(start); got != start {
		t.Fatalf("got %s, want %s", got, start)
	}
}

func TestResolveBaseDir_FollowsRootFile(t *testing.T) {
	shared := t.TempDir()
	laptop := t.TempDir()
	if err := os.WriteFile(filepath.Join(laptop, rootFile), []byte(shared+"\n"), 0644); err != nil {
		t.Fatalf("write %s: %v", rootFile, err)
	}
	subdir := filepath.Join(laptop, "nested")
	mkdir(t, subdir)

	assertSamePath(t, shared, ResolveBaseDir(subdir))
}

func TestResolveBaseDir_RelativeRootFile(t *testing.T) {
	parent := t.TempDir()
	studio := filepath.Join(parent, "studio")
	mkdir(t, studio)
	other := filepath.Join(parent, "other")
	mkdir(t, other)
	if err := os.WriteFile(filepath.Join(other, rootFile), []byte("../studio"), 0644); err != nil {
		t.Fatalf("write %s: %v", rootFile, err)
	}

	assertSamePath(t, studio, ResolveBaseDir(other))
}

func TestResolveBaseDir_EmptyRootFileIgnored(t *testing.T) {
	studio := t.TempDir()
	mkdir(t, filepath.Join(studio, ".yoga"))
	if err := os.WriteFile(filepath.Join(studio, rootFile), []byte("  \n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	assertSamePath(t, studio, ResolveBaseDir(studio))
}
