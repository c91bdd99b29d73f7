package analyzer

import (
	"errors"
	"fmt"

	"github.com/open-edge-platform/srcsec/internal/urlcache"
)

// UnknownHashError means a recipe declares no recognised digest list at all.
type UnknownHashError struct {
	Package string
}

func (e *UnknownHashError) Error() string {
	return fmt.Sprintf("package %s declares no known hash algorithm", e.Package)
}

// UnknownAlgorithmError means a signing key uses an algorithm (or an
// algorithm and size combination) that cannot be rated.
type UnknownAlgorithmError struct {
	Fingerprint string
	Algorithm   string
	Length      int
}

func (e *UnknownAlgorithmError) Error() string {
	return fmt.Sprintf("unknown algorithm type %s (%d bits) for fingerprint %s", e.Algorithm, e.Length, e.Fingerprint)
}

// UnknownProtocolError means a source uses a scheme no rule covers.
type UnknownProtocolError struct {
	URL string
}

func (e *UnknownProtocolError) Error() string {
	return fmt.Sprintf("unknown source protocol: %s", e.URL)
}

// MissingKeyError means a referenced fingerprint has no key fact. The key
// sync has to run before analysis.
type MissingKeyError struct {
	Fingerprint string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("fingerprint not in key store: %s", e.Fingerprint)
}

// Reason returns a short machine-friendly name for a classification error,
// or "error" for anything else.
func Reason(err error) string {
	var (
		hashErr  *UnknownHashError
		algoErr  *UnknownAlgorithmError
		protoErr *UnknownProtocolError
		keyErr   *MissingKeyError
		cacheErr *urlcache.NotCachedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &hashErr):
		return "unknown-hash"
	case errors.As(err, &algoErr):
		return "unknown-algorithm"
	case errors.As(err, &protoErr):
		return "unknown-protocol"
	case errors.As(err, &keyErr):
		return "missing-key"
	case errors.As(err, &cacheErr):
		return "not-cached"
	default:
		return "error"
	}
}

// IsFatal reports whether err fails the package being classified. Any other
// error comes from the key store or the URL cache backend and should abort
// the whole run.
func IsFatal(err error) bool {
	r := Reason(err)
	return r != "" && r != "error"
}
