package recipe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadPkglist reads a package list with one "repository name" pair per line
// and returns a name to repository map. Blank lines and # comments are skipped.
func LoadPkglist(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pkglist: %w", err)
	}
	defer f.Close()
	return ParsePkglist(f)
}

// ParsePkglist is LoadPkglist for an already open reader.
func ParsePkglist(r io.Reader) (map[string]string, error) {
	repos := make(map[string]string)

	s := bufio.NewScanner(r)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("pkglist line %d: expected \"repository name\", got %q", lineNo, line)
		}
		repos[fields[1]] = fields[0]
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading pkglist: %w", err)
	}
	return repos, nil
}
