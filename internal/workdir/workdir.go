// Package workdir resolves the studio directory: the directory that holds
// .yoga/. A .yoga-root file can redirect a directory to a shared studio.
package workdir

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	dataDir  = ".yoga"
	rootFile = ".yoga-root"
)

// ResolveBaseDir walks up from start to the nearest directory containing
// .yoga/ or a .yoga-root redirect. A relative redirect is resolved against
// the directory holding the file. With no marker anywhere above, start is
// returned unchanged so init creates the studio there.
func ResolveBaseDir(start string) string {
	dir := filepath.Clean(start)
	for {
		if target, ok := readRootFile(dir); ok {
			return target
		}
		if info, err := os.Stat(filepath.Join(dir, dataDir)); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

func readRootFile(dir string) (string, bool) {
	content, err := os.ReadFile(filepath.Join(dir, rootFile))
	if err != nil {
		return "", false
	}
	target := strings.TrimSpace(string(content))
	if target == "" {
		return "", false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	return filepath.Clean(target), true
}
