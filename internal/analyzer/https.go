package analyzer

import (
	"context"
	"strings"

	"github.com/open-edge-platform/srcsec/internal/rating"
	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
)

var vcsSchemes = []string{"git", "svn", "hg", "bzr"}

type transport int

const (
	transportUnknown transport = iota
	transportHTTPS
	transportVCSHTTPS
	transportInsecure
	transportLocal
)

func classifyLocator(locator string) transport {
	switch {
	case strings.HasPrefix(locator, "https://"):
		return transportHTTPS
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "ftp://"),
		strings.HasPrefix(locator, "git+git://"):
		return transportInsecure
	}
	for _, vcs := range vcsSchemes {
		switch {
		case strings.HasPrefix(locator, vcs+"+https://"):
			return transportVCSHTTPS
		case strings.HasPrefix(locator, vcs+"://"), strings.HasPrefix(locator, vcs+"+http://"):
			return transportInsecure
		}
	}
	if !strings.Contains(locator, "://") {
		return transportLocal
	}
	return transportUnknown
}

// HTTPS rates how many sources are fetched over an authenticated transport.
// Local files count as secure. For insecure sources an HTTPS equivalent found
// by the probe pass is returned in available.
func (a *Analyzer) HTTPS(ctx context.Context, sources []recipe.Source, upstream string) (r rating.Rating, available []string, err error) {
	secure := 0
	for _, src := range sources {
		switch classifyLocator(src.Locator) {
		case transportHTTPS:
			resolved, err := a.cache.HTTPSURL(ctx, src.Locator)
			if err != nil {
				return rating.NA, nil, err
			}
			if strings.HasPrefix(resolved, "http://") {
				logger.Logger().Warnf("insecure https -> http redirect: %s", src.Locator)
				continue
			}
			secure++
		case transportVCSHTTPS, transportLocal:
			secure++
		case transportInsecure:
			resolved, err := a.cache.HTTPSURL(ctx, src.Locator)
			if err != nil {
				return rating.NA, nil, err
			}
			if resolved != "" {
				available = append(available, resolved)
			}
		default:
			return rating.NA, nil, &UnknownProtocolError{URL: src.Locator}
		}
	}

	switch {
	case secure == len(sources):
		if strings.HasPrefix(upstream, "https://") {
			return rating.Excellent, available, nil
		}
		return rating.High, available, nil
	case secure == 0:
		return rating.Low, available, nil
	default:
		return rating.Mid, available, nil
	}
}
