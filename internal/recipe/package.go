// Package recipe models build-recipe package records and ingests them from
// .SRCINFO files into the package table.
package recipe

import (
	"strings"
	"time"

	"github.com/open-edge-platform/srcsec/internal/rating"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
)

// SkipDigest marks a source for which no digest is asserted.
const SkipDigest = "SKIP"

// FingerprintLength is the length of a full OpenPGP v4 fingerprint in hex.
const FingerprintLength = 40

// HashAlgorithm names a digest list of a recipe.
type HashAlgorithm string

const (
	MD5       HashAlgorithm = "md5"
	SHA1      HashAlgorithm = "sha1"
	SHA256    HashAlgorithm = "sha256"
	SHA384    HashAlgorithm = "sha384"
	SHA512    HashAlgorithm = "sha512"
	Whirlpool HashAlgorithm = "whirlpool"
)

// HashAlgorithms lists every supported algorithm, strongest first.
var HashAlgorithms = []HashAlgorithm{SHA512, Whirlpool, SHA256, SHA384, SHA1, MD5}

// Digests holds the per-algorithm digest lists. Each non-empty list is
// index-aligned with the package sources.
type Digests struct {
	MD5       []string `json:"md5,omitempty"`
	SHA1      []string `json:"sha1,omitempty"`
	SHA256    []string `json:"sha256,omitempty"`
	SHA384    []string `json:"sha384,omitempty"`
	SHA512    []string `json:"sha512,omitempty"`
	Whirlpool []string `json:"whirlpool,omitempty"`
}

// For returns the digest list of algo.
func (d Digests) For(algo HashAlgorithm) []string {
	switch algo {
	case MD5:
		return d.MD5
	case SHA1:
		return d.SHA1
	case SHA256:
		return d.SHA256
	case SHA384:
		return d.SHA384
	case SHA512:
		return d.SHA512
	case Whirlpool:
		return d.Whirlpool
	}
	return nil
}

// Set replaces the digest list of algo. Unknown algorithms are ignored.
func (d *Digests) Set(algo HashAlgorithm, values []string) {
	switch algo {
	case MD5:
		d.MD5 = values
	case SHA1:
		d.SHA1 = values
	case SHA256:
		d.SHA256 = values
	case SHA384:
		d.SHA384 = values
	case SHA512:
		d.SHA512 = values
	case Whirlpool:
		d.Whirlpool = values
	}
}

// Package is one package record. The Sec*, Available*, Security and
// AnalyzedAt fields are written by the classifier.
type Package struct {
	Name         string   `json:"name"`
	Base         string   `json:"base,omitempty"`
	Version      string   `json:"version,omitempty"`
	Repository   string   `json:"repository,omitempty"`
	UpstreamURL  string   `json:"url,omitempty"`
	Fingerprint  string   `json:"fingerprint,omitempty"`
	ValidGPGKeys []string `json:"validGpgKeys,omitempty"`
	Sources      []string `json:"sources,omitempty"`
	Digests      Digests  `json:"digests"`

	SecGPG              rating.Rating `json:"secGpg"`
	SecSig              rating.Rating `json:"secSig"`
	SecHash             rating.Rating `json:"secHash"`
	SecHTTPS            rating.Rating `json:"secHttps"`
	AvailableSignatures []string      `json:"availableSignatures,omitempty"`
	AvailableHTTPS      []string      `json:"availableHttps,omitempty"`
	Security            rating.Rating `json:"security"`
	AnalyzedAt          *time.Time    `json:"analyzedAt,omitempty"`
}

// New returns a record with every rating NA and no analysis timestamp.
func New(name string) Package {
	return Package{
		Name:     name,
		SecGPG:   rating.NA,
		SecSig:   rating.NA,
		SecHash:  rating.NA,
		SecHTTPS: rating.NA,
		Security: rating.NA,
	}
}

// Key is the table key of a package record.
func Key(p Package) string { return p.Name }

// Analyzed reports whether the classifier has already rated the record.
func (p Package) Analyzed() bool { return p.AnalyzedAt != nil }

// ResetAnalysis clears every classifier-owned field.
func (p *Package) ResetAnalysis() {
	p.SecGPG = rating.NA
	p.SecSig = rating.NA
	p.SecHash = rating.NA
	p.SecHTTPS = rating.NA
	p.AvailableSignatures = nil
	p.AvailableHTTPS = nil
	p.Security = rating.NA
	p.AnalyzedAt = nil
}

// ParsedSources returns the parsed source descriptors in order.
func (p Package) ParsedSources() []Source {
	out := make([]Source, len(p.Sources))
	for i, s := range p.Sources {
		out[i] = ParseSource(s)
	}
	return out
}

// LocalOnly reports whether no source is fetched over the network.
func (p Package) LocalOnly() bool {
	for _, s := range p.Sources {
		if ParseSource(s).Remote() {
			return false
		}
	}
	return true
}

// NormalizeKeys drops fingerprints that are not 40 characters long and
// removes duplicates, keeping the first occurrence. Fingerprints are upper-cased.
func NormalizeKeys(pkgname string, keys []string) []string {
	log := logger.Logger()

	var out []string
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		fp := strings.ToUpper(strings.TrimSpace(k))
		if len(fp) != FingerprintLength {
			log.Warnf("invalid fingerprint length %q in %s, dropping it", k, pkgname)
			continue
		}
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, fp)
	}
	return out
}
