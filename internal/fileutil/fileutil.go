// Package fileutil provides small filesystem helpers shared by the pipeline.
package fileutil

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CopyFile streams src to dst using io.Copy with default permissions (0o644).
func CopyFile(src, dst string) error {
	return CopyFileMode(src, dst, 0o644)
}

// CopyFileMode streams src to dst, setting the given file mode on dst.
func CopyFileMode(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// RemoveQuiet deletes each path, ignoring errors. Used for best-effort
// cleanup of intermediate pipeline artifacts.
func RemoveQuiet(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		_ = os.RemoveAll(path)
	}
}

// SafeBaseName strips directory components and neutralizes characters that
// would be awkward in generated file names.
func SafeBaseName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "upload"
	}
	replacer := strings.NewReplacer(" ", "_", "\t", "_", "\n", "_", "\"", "", "'", "", ":", "-", "*", "", "?", "", "|", "-")
	cleaned := replacer.Replace(base)
	if cleaned == "" {
		return "upload"
	}
	return cleaned
}
