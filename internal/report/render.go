package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-edge-platform/srcsec/internal/rating"
)

var criterionTitles = map[Criterion]string{
	Security: "Package",
	GPG:      "GPG Key",
	Sig:      "Signature",
	HTTPS:    "HTTPS",
	Hash:     "Hash",
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// WriteText renders the summary as plain tables.
func WriteText(w io.Writer, s *Summary) error {
	columns := append([]string{Total}, s.Repositories...)

	fmt.Fprintf(w, "Security evaluation (%s)\n", s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	for _, c := range Criteria {
		fmt.Fprintf(w, "\n%s Security\n", criterionTitles[c])
		fmt.Fprintf(w, "%-12s", "")
		for _, col := range columns {
			fmt.Fprintf(w, " %16s", col)
		}
		fmt.Fprintln(w)

		for _, r := range rating.All {
			fmt.Fprintf(w, "%-12s", r)
			for _, col := range columns {
				n := s.Ratings[c][col][r]
				fmt.Fprintf(w, " %7d (%5.1f%%)", n, percent(n, s.Packages[col]))
			}
			fmt.Fprintln(w)
		}

		var extra map[string]int
		switch c {
		case Sig:
			extra = s.AvailableSignatures
		case HTTPS:
			extra = s.AvailableHTTPS
		}
		if extra != nil {
			fmt.Fprintf(w, "%-12s", "Unused")
			for _, col := range columns {
				fmt.Fprintf(w, " %7d (%5.1f%%)", extra[col], percent(extra[col], s.Packages[col]))
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintf(w, "\n%-12s %10s %10s %10s %10s\n", "Repository", "Packages", "Unrated", "Unused sig", "Unused TLS")
	for _, col := range columns {
		fmt.Fprintf(w, "%-12s %10d %10d %10d %10d\n", col,
			s.Packages[col], s.Unanalyzed[col], s.AvailableSignatures[col], s.AvailableHTTPS[col])
	}

	if len(s.Keys) > 0 {
		dist := GroupSmall(s.Keys, 0.02)
		names := make([]string, 0, len(dist))
		for n := range dist {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool {
			if dist[names[i]] != dist[names[j]] {
				return dist[names[i]] > dist[names[j]]
			}
			return names[i] < names[j]
		})
		fmt.Fprintf(w, "\nGPG Key Distribution\n")
		for _, n := range names {
			fmt.Fprintf(w, "%-16s %7d\n", n, dist[n])
		}
	}
	return nil
}

// WriteJSON renders the summary as indented JSON.
func WriteJSON(w io.Writer, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// safeName maps anything outside [A-Za-z0-9._-] to an underscore.
func safeName(name string) string {
	if name == "" {
		return "untitled"
	}
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '.' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// WriteAvailableLists writes <repo>_sig.txt and <repo>_https.txt into dir,
// one "package: url, url" line per package. It returns the written paths.
func WriteAvailableLists(dir string, s *Summary) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var written []string
	for _, set := range []struct {
		suffix string
		lists  map[string][]Available
	}{
		{suffix: "_sig.txt", lists: s.SignatureLists},
		{suffix: "_https.txt", lists: s.HTTPSLists},
	} {
		repos := make([]string, 0, len(set.lists))
		for repo := range set.lists {
			repos = append(repos, repo)
		}
		sort.Strings(repos)

		for _, repo := range repos {
			path := filepath.Join(dir, safeName(repo)+set.suffix)
			if err := writeList(path, set.lists[repo]); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}

func writeList(path string, items []Available) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	sort.Slice(items, func(i, j int) bool { return items[i].Package < items[j].Package })
	for _, item := range items {
		if _, err := fmt.Fprintf(f, "%s: %s\n", item.Package, strings.Join(item.URLs, ", ")); err != nil {
			return fmt.Errorf("writing to file: %w", err)
		}
	}
	return nil
}
