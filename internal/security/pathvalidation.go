// Package security holds filesystem path validation shared by the config
// loader and the database backup endpoint.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// canonicalize resolves path to an absolute form with symlinks evaluated.
// When the path does not exist yet (a backup target, for instance) the
// nearest existing ancestor is resolved instead so a symlinked parent cannot
// smuggle the path out of its directory.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	// Walk up until an existing ancestor resolves, then re-append the
	// remainder.
	check := abs
	for {
		parent := filepath.Dir(check)
		if parent == check {
			return abs, nil
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, err := filepath.Rel(parent, abs)
			if err != nil {
				return abs, nil
			}
			return filepath.Join(resolved, rel), nil
		}
		check = parent
	}
}

// ValidatePathWithinDirectory rejects file paths that escape safeDir after
// cleaning and symlink resolution.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	canonicalPath, err := canonicalize(filePath)
	if err != nil {
		return err
	}

	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// ValidateExportPath validates a target path for file exports such as
// database backups. The path must land inside the temp directory or the
// current working directory.
func ValidateExportPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	allowed := []string{os.TempDir(), cwd}
	for _, dir := range allowed {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("path must be within one of the allowed directories: %v", allowed)
}

// SanitizeFilename makes a safe filename from an arbitrary identifier such as
// a scenario id. Characters outside ASCII letters, digits, dot, underscore
// and dash become underscores; runs of underscores collapse and the result is
// capped at 128 bytes.
func SanitizeFilename(s string) string {
	if s == "" {
		return "unknown"
	}
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
