package analyzer

import (
	"context"
	"slices"

	"github.com/open-edge-platform/srcsec/internal/rating"
	"github.com/open-edge-platform/srcsec/internal/recipe"
)

// Signature rates how many remote files come with a detached signature.
//
// A signature paired by filename inside the source list is recorded in the
// URL cache. For unpaired remote files a signature found by the probe pass is
// returned in available, since upstream offers it but the recipe ignores it.
func (a *Analyzer) Signature(ctx context.Context, sources []recipe.Source, gpg rating.Rating) (r rating.Rating, available []string, err error) {
	filenames := recipe.Filenames(sources)
	sigCount, fileCount := 0, 0

	for _, src := range sources {
		if src.IsSignature() {
			if src.Remote() {
				sigCount++
			}
			continue
		}
		if src.Remote() {
			fileCount++
		}

		paired := false
		for _, suffix := range recipe.SignatureSuffixes {
			i := slices.Index(filenames, src.Filename+suffix)
			if i < 0 {
				continue
			}
			paired = true
			if src.Remote() && sources[i].Remote() {
				if err := a.cache.RecordSignature(ctx, src.Locator, sources[i].Locator); err != nil {
					return rating.NA, nil, err
				}
			}
			break
		}

		if !paired && src.Remote() {
			sig, err := a.cache.SignatureURL(ctx, src.Locator)
			if err != nil {
				return rating.NA, nil, err
			}
			if sig != "" {
				available = append(available, sig)
			}
		}
	}

	switch {
	case sigCount == 0:
		return rating.Low, available, nil
	case sigCount == fileCount:
		if gpg == rating.Excellent {
			return rating.Excellent, available, nil
		}
		return rating.High, available, nil
	default:
		return rating.Mid, available, nil
	}
}
