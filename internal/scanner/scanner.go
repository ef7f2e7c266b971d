// Package scanner finds statement files under a directory tree laid out as
// {root}/{bank}/{account}/{YYYY-MM}/file.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/registry"
)

// Scanner walks directory tree and finds statement files
type Scanner struct {
	rootDir string
}

// New creates a new scanner for the given root directory
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// ScanResult is a found statement with what its location says about it.
// Bank, Account and Month are empty when the layout does not provide them.
type ScanResult struct {
	Path    string
	Format  domain.Format
	Size    int64
	Bank    string
	Account string
	Month   string
}

// Scan walks the tree and returns every file with a supported extension,
// ordered by path. Hidden directories are skipped.
func (s *Scanner) Scan() ([]ScanResult, error) {
	rootDir, err := s.expandHome(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	var results []ScanResult
	err = filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing %s: %w", path, err)
		}
		if d.IsDir() {
			if path != rootDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		format, ok := s.statementFormat(path)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("error accessing %s: %w", path, err)
		}

		result := s.locate(path, rootDir)
		result.Format = format
		result.Size = info.Size()
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// Paths returns the paths of scan results
func Paths(results []ScanResult) []string {
	paths := make([]string, len(results))
	for i, r := range results {
		paths[i] = r.Path
	}
	return paths
}

func (s *Scanner) statementFormat(path string) (domain.Format, bool) {
	format, err := registry.Detect(path)
	return format, err == nil
}

// locate reads bank, account and month from the directories between root
// and the file.
func (s *Scanner) locate(filePath, rootDir string) ScanResult {
	result := ScanResult{Path: filePath}

	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		return result
	}
	parts := strings.Split(filepath.ToSlash(relPath), "/")

	if len(parts) >= 2 {
		result.Bank = s.bankName(parts[0])
	}
	if len(parts) >= 3 {
		result.Account = parts[1]
	}
	if len(parts) >= 4 && s.looksLikeMonth(parts[2]) {
		result.Month = parts[2]
	}
	return result
}

// bankName turns a directory name into a display name
// "banco_do_brasil" -> "Banco Do Brasil"
func (s *Scanner) bankName(dirName string) string {
	name := strings.ReplaceAll(dirName, "_", " ")
	if name != strings.ToLower(name) {
		return name
	}
	return cases.Title(language.BrazilianPortuguese).String(name)
}

func (s *Scanner) looksLikeMonth(str string) bool {
	_, err := time.Parse("2006-01", str)
	return err == nil
}

// expandHome expands a leading ~/ to the home directory
func (s *Scanner) expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
