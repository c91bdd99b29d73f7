// Package report aggregates stored ratings into per-repository statistics
// and writes the lists of unused upstream signatures and HTTPS URLs.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/open-edge-platform/srcsec/internal/rating"
	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/open-edge-platform/srcsec/internal/store"
)

// Total is the pseudo-repository that sums every repository.
const Total = "Total"

// NoRepository groups packages ingested without a package list.
const NoRepository = "unknown"

// Criterion names one rated field of a package.
type Criterion string

const (
	Security Criterion = "security"
	GPG      Criterion = "gpg"
	Sig      Criterion = "signature"
	HTTPS    Criterion = "https"
	Hash     Criterion = "hash"
)

// Criteria lists every criterion in report order.
var Criteria = []Criterion{Security, GPG, Sig, HTTPS, Hash}

func (c Criterion) of(p recipe.Package) rating.Rating {
	switch c {
	case GPG:
		return p.SecGPG
	case Sig:
		return p.SecSig
	case HTTPS:
		return p.SecHTTPS
	case Hash:
		return p.SecHash
	default:
		return p.Security
	}
}

// Counts maps each rating to a number of packages.
type Counts map[rating.Rating]int

// Available is one package with upstream URLs its recipe does not use.
type Available struct {
	Package string   `json:"package"`
	URLs    []string `json:"urls"`
}

// Summary is the evaluation of the package table.
type Summary struct {
	GeneratedAt  time.Time `json:"generatedAt"`
	Repositories []string  `json:"repositories"`

	// Ratings is keyed by criterion, then repository (including Total).
	Ratings map[Criterion]map[string]Counts `json:"ratings"`

	Packages            map[string]int `json:"packages"`
	Unanalyzed          map[string]int `json:"unanalyzed"`
	AvailableSignatures map[string]int `json:"availableSignatures"`
	AvailableHTTPS      map[string]int `json:"availableHttps"`

	// Keys is the signing key distribution, when a key store was given.
	Keys map[string]int `json:"keys,omitempty"`

	SignatureLists map[string][]Available `json:"-"`
	HTTPSLists     map[string][]Available `json:"-"`
}

// KeyDistribution is implemented by the key store.
type KeyDistribution interface {
	Distribution(ctx context.Context) (map[string]int, error)
}

// Options filters what Evaluate looks at.
type Options struct {
	// Packages limits the evaluation to these names. Empty means all.
	Packages []string
	Keys     KeyDistribution
	Now      func() time.Time
}

// Evaluate counts ratings per criterion and repository.
func Evaluate(ctx context.Context, table store.Table[recipe.Package], opts Options) (*Summary, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	s := &Summary{
		GeneratedAt:         now().UTC(),
		Ratings:             make(map[Criterion]map[string]Counts, len(Criteria)),
		Packages:            map[string]int{},
		Unanalyzed:          map[string]int{},
		AvailableSignatures: map[string]int{},
		AvailableHTTPS:      map[string]int{},
		SignatureLists:      map[string][]Available{},
		HTTPSLists:          map[string][]Available{},
	}
	for _, c := range Criteria {
		s.Ratings[c] = map[string]Counts{Total: {}}
	}

	var match func(recipe.Package) bool
	if len(opts.Packages) > 0 {
		wanted := make(map[string]bool, len(opts.Packages))
		for _, n := range opts.Packages {
			wanted[n] = true
		}
		match = func(p recipe.Package) bool { return wanted[p.Name] }
	}

	repos := map[string]bool{}
	for p, err := range table.Query(ctx, match) {
		if err != nil {
			return nil, fmt.Errorf("reading packages: %w", err)
		}
		repo := p.Repository
		if repo == "" {
			repo = NoRepository
		}
		repos[repo] = true

		for _, key := range []string{Total, repo} {
			s.Packages[key]++
			if !p.Analyzed() {
				s.Unanalyzed[key]++
			}
			if len(p.AvailableSignatures) > 0 {
				s.AvailableSignatures[key]++
			}
			if len(p.AvailableHTTPS) > 0 {
				s.AvailableHTTPS[key]++
			}
			for _, c := range Criteria {
				byRepo := s.Ratings[c]
				if byRepo[key] == nil {
					byRepo[key] = Counts{}
				}
				byRepo[key][c.of(p)]++
			}
		}

		if len(p.AvailableSignatures) > 0 {
			s.SignatureLists[repo] = append(s.SignatureLists[repo], Available{Package: p.Name, URLs: p.AvailableSignatures})
		}
		if len(p.AvailableHTTPS) > 0 {
			s.HTTPSLists[repo] = append(s.HTTPSLists[repo], Available{Package: p.Name, URLs: p.AvailableHTTPS})
		}
	}

	for r := range repos {
		s.Repositories = append(s.Repositories, r)
	}
	sort.Strings(s.Repositories)

	if opts.Keys != nil {
		dist, err := opts.Keys.Distribution(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading key distribution: %w", err)
		}
		s.Keys = dist
	}
	return s, nil
}

// GroupSmall folds every entry below minShare of the total into "Other".
func GroupSmall(dist map[string]int, minShare float64) map[string]int {
	total := 0
	for _, n := range dist {
		total += n
	}
	out := make(map[string]int, len(dist))
	for name, n := range dist {
		if total > 0 && float64(n)/float64(total) < minShare {
			out["Other"] += n
			continue
		}
		out[name] = n
	}
	return out
}
