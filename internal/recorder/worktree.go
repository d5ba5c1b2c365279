package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxFileSize guards against pulling huge artifacts into snapshots.
const maxFileSize = 1_000_000

// internalDirs are never captured.
var internalDirs = map[string]bool{".git": true, ".jj": true, ".tug": true}

// ReadTree reads the capturable contents of a working directory, keyed by
// slash-separated relative path. Ignore patterns from .gitignore and
// .tugignore in the tree root are merged with the configured patterns.
// Unreadable entries and oversized files are skipped with a warning.
func ReadTree(workDir string, ignorePatterns []string) (map[string][]byte, []string, error) {
	patterns, err := loadIgnorePatterns(workDir, ignorePatterns)
	var warnings []string
	if err != nil {
		warnings = append(warnings, "failed to load ignore patterns: "+err.Error())
	}

	files := make(map[string][]byte)
	walkErr := filepath.WalkDir(workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			warnings = append(warnings, "skipping unreadable entry: "+path)
			return nil
		}
		if d.IsDir() {
			if internalDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if isIgnored(rel, patterns) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxFileSize {
			warnings = append(warnings, fmt.Sprintf("skipping large file: %s (%d bytes)", rel, info.Size()))
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			warnings = append(warnings, "skipping unreadable file: "+rel)
			return nil
		}
		files[rel] = data
		return nil
	})
	if walkErr != nil {
		return nil, warnings, fmt.Errorf("walking %s: %w", workDir, walkErr)
	}
	return files, warnings, nil
}

// isIgnored reports whether the relative path matches any glob pattern,
// checked against the base name, the relative path, and any parent prefix.
func isIgnored(rel string, patterns []string) bool {
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(pattern, "/")
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
		// Directory pattern: ignore everything beneath it.
		if strings.HasPrefix(rel, pattern+"/") {
			return true
		}
	}
	return false
}

// loadIgnorePatterns merges configured patterns with those found in
// .gitignore and .tugignore files in the tree root.
func loadIgnorePatterns(workDir string, configured []string) ([]string, error) {
	patterns := make([]string, len(configured))
	copy(patterns, configured)

	for _, name := range []string{".gitignore", ".tugignore"} {
		extra, err := readPatternFile(filepath.Join(workDir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return patterns, err
		}
		patterns = append(patterns, extra...)
	}
	return patterns, nil
}

// readPatternFile reads a gitignore-style file, returning non-empty,
// non-comment lines.
func readPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}
