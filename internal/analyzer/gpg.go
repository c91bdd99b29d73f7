package analyzer

import (
	"context"
	"iter"
	"time"

	"github.com/open-edge-platform/srcsec/internal/keystore"
	"github.com/open-edge-platform/srcsec/internal/rating"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
)

// keyClass is the rating of one signing key. stop ends the fold with rating
// regardless of the remaining keys.
type keyClass struct {
	fingerprint string
	rating      rating.Rating
	stop        bool
	reason      string
}

// classifyKey rates a single key fact at time now.
func classifyKey(k keystore.KeyFact, now time.Time) (keyClass, error) {
	c := keyClass{fingerprint: k.Fingerprint}
	if k.Expired(now) {
		c.rating, c.stop, c.reason = rating.Mid, true, "key expired"
		return c, nil
	}

	algo, err := k.AlgorithmID()
	if err != nil {
		return c, &UnknownAlgorithmError{Fingerprint: k.Fingerprint, Algorithm: k.Algorithm, Length: k.Length}
	}
	switch algo {
	case keystore.AlgoRSA, keystore.AlgoRSAEncrypt, keystore.AlgoRSASign:
		switch {
		case k.Length >= 4096:
			c.rating = rating.Excellent
		case k.Length >= 2048:
			c.rating = rating.High
		default:
			c.rating, c.stop, c.reason = rating.Mid, true, "RSA key shorter than 2048 bits"
		}
	case keystore.AlgoEdDSA:
		if k.Length != 256 {
			return c, &UnknownAlgorithmError{Fingerprint: k.Fingerprint, Algorithm: k.Algorithm, Length: k.Length}
		}
		c.rating = rating.Excellent
	case keystore.AlgoDSA:
		c.rating, c.stop, c.reason = rating.Mid, true, "insecure DSA key"
	default:
		return c, &UnknownAlgorithmError{Fingerprint: k.Fingerprint, Algorithm: k.Algorithm, Length: k.Length}
	}
	return c, nil
}

// classifyKeys lazily looks up and rates each fingerprint, so keys after an
// early exit are never resolved.
func (a *Analyzer) classifyKeys(ctx context.Context, fingerprints []string) iter.Seq2[keyClass, error] {
	return func(yield func(keyClass, error) bool) {
		now := a.now()
		for _, fp := range fingerprints {
			k, ok, err := a.keys.Lookup(ctx, fp)
			if err == nil && !ok {
				err = &MissingKeyError{Fingerprint: fp}
			}
			if err != nil {
				yield(keyClass{fingerprint: fp}, err)
				return
			}
			if !yield(classifyKey(k, now)) {
				return
			}
		}
	}
}

// GPG rates the signing keys of a package: LOW without keys, otherwise the
// weakest key. An expired, short RSA or DSA key caps the package at MID.
func (a *Analyzer) GPG(ctx context.Context, pkg string, fingerprints []string) (rating.Rating, error) {
	if len(fingerprints) == 0 {
		return rating.Low, nil
	}

	result := rating.Excellent
	for c, err := range a.classifyKeys(ctx, fingerprints) {
		if err != nil {
			return rating.NA, err
		}
		if c.stop {
			logger.Logger().Warnf("package %s: %s: %s", pkg, c.reason, c.fingerprint)
			return c.rating, nil
		}
		result = rating.WorstOf(result, c.rating)
	}
	return result, nil
}
