package utils

import (
	"path/filepath"
	"strings"
)

// GetPathInfo returns the absolute form of relPath and the directory that
// contains it.
func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}
	parentDir = filepath.Dir(fullPath)
	return fullPath, parentDir, nil
}

// OutputPath names the artifact for a script source. An empty outDir keeps
// the artifact beside the source.
func OutputPath(srcPath, outDir, ext string) string {
	base := filepath.Base(srcPath)
	if e := filepath.Ext(base); e != "" {
		base = strings.TrimSuffix(base, e)
	}
	if outDir == "" {
		outDir = filepath.Dir(srcPath)
	}
	return filepath.Join(outDir, base+ext)
}

// IsHeader reports whether path names a header, whose text is prepended to
// every unit instead of being compiled on its own.
func IsHeader(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ash")
}
