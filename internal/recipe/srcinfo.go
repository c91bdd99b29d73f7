package recipe

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Parser turns raw recipe bytes into package records. A recipe may describe
// several (split) packages.
type Parser func(r io.Reader) ([]Package, error)

var sumKeys = map[string]HashAlgorithm{
	"md5sums":       MD5,
	"sha1sums":      SHA1,
	"sha256sums":    SHA256,
	"sha384sums":    SHA384,
	"sha512sums":    SHA512,
	"whirlpoolsums": Whirlpool,
}

// srcinfoSection collects the repeated key = value lines of one section.
type srcinfoSection struct {
	name   string
	values map[string][]string
	order  []string
}

func newSection(name string) *srcinfoSection {
	return &srcinfoSection{name: name, values: make(map[string][]string)}
}

func (s *srcinfoSection) add(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.order = append(s.order, key)
	}
	s.values[key] = append(s.values[key], value)
}

func (s *srcinfoSection) first(key string) string {
	if v := s.values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// ParseSRCINFO parses an Arch Linux .SRCINFO document. Every pkgname section
// yields one package that inherits the pkgbase values.
func ParseSRCINFO(r io.Reader) ([]Package, error) {
	var (
		base  *srcinfoSection
		parts []*srcinfoSection
		cur   *srcinfoSection
	)

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		// skip comments or empty
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key = value, got %q", lineNo, line)
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch key {
		case "pkgbase":
			if base != nil {
				return nil, fmt.Errorf("line %d: duplicate pkgbase", lineNo)
			}
			base = newSection(val)
			cur = base
		case "pkgname":
			if base == nil {
				return nil, fmt.Errorf("line %d: pkgname before pkgbase", lineNo)
			}
			cur = newSection(val)
			parts = append(parts, cur)
		default:
			if cur == nil {
				return nil, fmt.Errorf("line %d: %s outside of a section", lineNo, key)
			}
			cur.add(key, val)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading srcinfo: %w", err)
	}
	if base == nil {
		return nil, fmt.Errorf("no pkgbase section")
	}
	if len(parts) == 0 {
		parts = append(parts, newSection(base.name))
	}

	sources, digests := collectSources(base)
	version := formatVersion(base)
	keys := NormalizeKeys(base.name, base.values["validpgpkeys"])

	pkgs := make([]Package, 0, len(parts))
	for _, part := range parts {
		pkg := New(part.name)
		if len(parts) > 1 || part.name != base.name {
			pkg.Base = base.name
		}
		pkg.Version = version
		pkg.UpstreamURL = base.first("url")
		if u := part.first("url"); u != "" {
			pkg.UpstreamURL = u
		}
		pkg.ValidGPGKeys = append([]string(nil), keys...)
		pkg.Sources = append([]string(nil), sources...)
		pkg.Digests = digests.clone()
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// collectSources concatenates the generic source and digest lists followed by
// the architecture-specific ones, all in the same architecture order so that
// digests stay aligned with sources.
func collectSources(base *srcinfoSection) ([]string, Digests) {
	archSet := map[string]bool{}
	for _, key := range base.order {
		if arch, ok := strings.CutPrefix(key, "source_"); ok {
			archSet[arch] = true
		}
	}
	arches := make([]string, 0, len(archSet))
	for a := range archSet {
		arches = append(arches, a)
	}
	sort.Strings(arches)

	sources := append([]string(nil), base.values["source"]...)
	for _, a := range arches {
		sources = append(sources, base.values["source_"+a]...)
	}

	var digests Digests
	for key, algo := range sumKeys {
		list := append([]string(nil), base.values[key]...)
		for _, a := range arches {
			list = append(list, base.values[key+"_"+a]...)
		}
		if len(list) > 0 {
			digests.Set(algo, list)
		}
	}
	return sources, digests
}

func formatVersion(base *srcinfoSection) string {
	ver := base.first("pkgver")
	if ver == "" {
		return ""
	}
	if rel := base.first("pkgrel"); rel != "" {
		ver += "-" + rel
	}
	if epoch := base.first("epoch"); epoch != "" && epoch != "0" {
		ver = epoch + ":" + ver
	}
	return ver
}

func (d Digests) clone() Digests {
	var out Digests
	for _, algo := range HashAlgorithms {
		if v := d.For(algo); v != nil {
			out.Set(algo, append([]string(nil), v...))
		}
	}
	return out
}
