package analyzer

import (
	"github.com/open-edge-platform/srcsec/internal/rating"
	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
)

var hashTiers = []struct {
	algos  []recipe.HashAlgorithm
	rating rating.Rating
}{
	{algos: []recipe.HashAlgorithm{recipe.SHA512, recipe.Whirlpool}, rating: rating.Excellent},
	{algos: []recipe.HashAlgorithm{recipe.SHA256, recipe.SHA384}, rating: rating.High},
	{algos: []recipe.HashAlgorithm{recipe.SHA1}, rating: rating.Mid},
	{algos: []recipe.HashAlgorithm{recipe.MD5}, rating: rating.Low},
}

// Hash rates the digest lists of a package.
//
// A SKIP digest on a remote archive caps the rating at LOW, and a SKIP digest
// without a matching source yields NA. Otherwise the strongest algorithm
// present decides.
func Hash(pkg string, digests recipe.Digests, sources []recipe.Source) (rating.Rating, error) {
	log := logger.Logger()

	for _, algo := range recipe.HashAlgorithms {
		for i, d := range digests.For(algo) {
			if d != recipe.SkipDigest {
				continue
			}
			if i >= len(sources) {
				log.Warnf("package %s has no valid url for %s digest %d", pkg, algo, i)
				return rating.NA, nil
			}
			src := sources[i]
			if src.Archive() && !src.IsSignature() && !recipe.HasSignatureSuffix(src.Locator) {
				log.Warnf("package %s has SKIP message digest for archive file %s", pkg, src.Filename)
				return rating.Low, nil
			}
		}
	}

	for _, tier := range hashTiers {
		for _, algo := range tier.algos {
			if len(digests.For(algo)) > 0 {
				return tier.rating, nil
			}
		}
	}
	return rating.NA, &UnknownHashError{Package: pkg}
}
