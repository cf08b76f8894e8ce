// Package fileutil locates metadata files on disk.
package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanOptions selects the files a scan returns
type ScanOptions struct {
	// Extensions keeps files with one of these extensions (case-insensitive).
	// Empty keeps every file.
	Extensions []string
	// Recursive descends into subdirectories
	Recursive bool
	// ExcludeDirs names directories that are never entered. Hidden
	// directories below the root are always skipped.
	ExcludeDirs []string
}

// ScanResult holds the matched files and the non-fatal errors of a scan
type ScanResult struct {
	Files  []string
	Errors []error
}

// ScanDirectory lists the files under dir matching opts, sorted by path.
// Unreadable entries are collected in Errors and the walk continues.
func ScanDirectory(dir string, opts ScanOptions) (*ScanResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	exts := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[strings.ToLower(ext)] = true
	}
	excluded := make(map[string]bool, len(opts.ExcludeDirs))
	for _, name := range opts.ExcludeDirs {
		excluded[name] = true
	}

	result := &ScanResult{Files: []string{}}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("error accessing %s: %w", path, err))
			return nil
		}
		if path == dir {
			return nil
		}

		if d.IsDir() {
			if !opts.Recursive || excluded[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if len(exts) > 0 && !exts[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		result.Files = append(result.Files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Strings(result.Files)
	return result, nil
}

// ExpandPaths resolves a list of files and directories into files.
// Files are returned as given, in order; each directory is replaced by the
// result of scanning it with opts.
func ExpandPaths(paths []string, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{Files: []string{}}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to access %s: %w", p, err)
		}
		if !info.IsDir() {
			result.Files = append(result.Files, p)
			continue
		}

		scanned, err := ScanDirectory(p, opts)
		if err != nil {
			return nil, err
		}
		result.Files = append(result.Files, scanned.Files...)
		result.Errors = append(result.Errors, scanned.Errors...)
	}
	return result, nil
}
