package classifier

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/open-edge-platform/srcsec/internal/analyzer"
	"github.com/open-edge-platform/srcsec/internal/keystore"
	"github.com/open-edge-platform/srcsec/internal/rating"
	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/open-edge-platform/srcsec/internal/store"
	"github.com/open-edge-platform/srcsec/internal/urlcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// silentProber finds nothing upstream.
type silentProber struct{}

func (silentProber) Head(context.Context, string) (string, bool) { return "", false }

type env struct {
	packages *store.MemoryTable[recipe.Package]
	cache    *urlcache.Cache
	keys     *keystore.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		packages: store.NewMemoryTable[recipe.Package]("packages", recipe.Key),
		cache:    urlcache.New(store.NewMemoryTable[urlcache.Entry]("sources", urlcache.Key), silentProber{}),
		keys:     keystore.New(store.NewMemoryTable[keystore.KeyFact]("keys", keystore.Key)),
	}
	_, err := e.keys.Put(context.Background(), keystore.KeyFact{
		Fingerprint: strings.Repeat("F", 40),
		Algorithm:   "1",
		Length:      4096,
	})
	require.NoError(t, err)
	return e
}

// register stores pkgs and registers their remote sources the way ingest
// does, without probing them.
func (e *env) register(t *testing.T, pkgs ...recipe.Package) {
	t.Helper()
	ctx := context.Background()
	for _, p := range pkgs {
		_, err := e.packages.Upsert(ctx, p)
		require.NoError(t, err)
		_, err = e.cache.Register(ctx, remoteLocators(p))
		require.NoError(t, err)
	}
}

// add registers pkgs and runs the probe pass over their sources.
func (e *env) add(t *testing.T, pkgs ...recipe.Package) {
	t.Helper()
	e.register(t, pkgs...)
	_, err := e.cache.ProbeAll(context.Background(), urlcache.ProbeOptions{Workers: 2, Progress: io.Discard})
	require.NoError(t, err)
}

func remoteLocators(p recipe.Package) []string {
	var urls []string
	for _, s := range p.ParsedSources() {
		if s.Remote() {
			urls = append(urls, s.Locator)
		}
	}
	return urls
}

func (e *env) classifier(opts ...Option) *Classifier {
	a := analyzer.New(e.keys, e.cache, analyzer.WithClock(func() time.Time { return fixedNow }))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(e.packages, a, opts...)
}

func signedPackage() recipe.Package {
	p := recipe.New("a")
	p.Sources = []string{"a.tar.gz::https://x/a.tar.gz", "a.tar.gz.sig::https://x/a.tar.gz.sig"}
	p.Digests.SHA256 = []string{"deadbeef", "SKIP"}
	p.ValidGPGKeys = []string{strings.Repeat("F", 40)}
	p.UpstreamURL = "https://x"
	return p
}

func TestClassifySignedPackage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.add(t, signedPackage())

	got, changed, err := e.classifier().Classify(ctx, signedPackage())
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, rating.High, got.SecHash)
	assert.Equal(t, rating.Excellent, got.SecGPG)
	assert.Equal(t, rating.Excellent, got.SecSig)
	assert.Equal(t, rating.Excellent, got.SecHTTPS)
	assert.Equal(t, rating.Excellent, got.Security)
	require.NotNil(t, got.AnalyzedAt)
	assert.Equal(t, fixedNow, *got.AnalyzedAt)

	sig, err := e.cache.SignatureURL(ctx, "https://x/a.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "https://x/a.tar.gz.sig", sig)
}

func TestClassifyLocalOnly(t *testing.T) {
	p := recipe.New("local")
	p.Sources = []string{"fix.patch", "config"}
	p.Digests.SHA512 = []string{"a", "b"}
	p.ValidGPGKeys = []string{strings.Repeat("0", 40)} // would be a missing key

	got, _, err := newEnv(t).classifier().Classify(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, rating.Excellent, got.SecHash)
	assert.Equal(t, rating.NA, got.SecGPG)
	assert.Equal(t, rating.NA, got.SecSig)
	assert.Equal(t, rating.NA, got.SecHTTPS)
	assert.Equal(t, rating.Low, got.Security)
}

func TestClassifyWithoutSources(t *testing.T) {
	got, changed, err := newEnv(t).classifier().Classify(context.Background(), recipe.New("meta"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, rating.NA, got.SecHash)
	assert.Equal(t, rating.NA, got.Security)
	assert.NotNil(t, got.AnalyzedAt)
}

func TestClassifySkipsAnalyzed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.add(t, signedPackage())

	first, _, err := e.classifier().Classify(ctx, signedPackage())
	require.NoError(t, err)

	again, changed, err := e.classifier().Classify(ctx, first)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, again)

	forced, changed, err := e.classifier(WithForce(true)).Classify(ctx, first)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, first.Security, forced.Security)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.add(t, signedPackage())

	res, err := e.classifier().Run(ctx, RunOptions{Progress: io.Discard})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Analyzed)
	assert.NotEmpty(t, res.RunID)

	stored, err := e.packages.Get(ctx, "a")
	require.NoError(t, err)

	res2, err := e.classifier().Run(ctx, RunOptions{Progress: io.Discard})
	require.NoError(t, err)
	assert.Empty(t, res2.Outcomes)
	assert.NotEqual(t, res.RunID, res2.RunID)

	after, err := e.packages.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, stored, after)
}

func TestRunContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	bad := recipe.New("bad")
	bad.Sources = []string{"rsync://x/bad.tar.gz"}
	bad.Digests.SHA256 = []string{"abc"}

	nohash := recipe.New("nohash")
	nohash.Sources = []string{"https://x/n.tar.gz"}

	e.add(t, bad, nohash, signedPackage())

	res, err := e.classifier().Run(ctx, RunOptions{Progress: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Analyzed)
	assert.Equal(t, 2, res.Failed)
	assert.Error(t, res.Err())

	reasons := map[string]string{}
	for _, o := range res.Outcomes {
		reasons[o.Package] = o.Reason
	}
	assert.Equal(t, "unknown-protocol", reasons["bad"])
	assert.Equal(t, "unknown-hash", reasons["nohash"])
	assert.Equal(t, "", reasons["a"])

	stored, err := e.packages.Get(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, stored.Analyzed(), "failed package stays eligible for the next run")

	ok, err := e.packages.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, rating.Excellent, ok.Security)
}

func TestRunNamedPackages(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.add(t, signedPackage())

	res, err := e.classifier().Run(ctx, RunOptions{Packages: []string{"a"}, Progress: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Analyzed)

	res, err = e.classifier().Run(ctx, RunOptions{Packages: []string{"a"}, Progress: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	_, err = e.classifier().Run(ctx, RunOptions{Packages: []string{"missing"}, Progress: io.Discard})
	assert.Error(t, err)
}

func TestRunRequiresProbedSources(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	// stored without registering its urls
	_, err := e.packages.Upsert(ctx, signedPackage())
	require.NoError(t, err)

	res, err := e.classifier().Run(ctx, RunOptions{Progress: io.Discard})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusFailed, res.Outcomes[0].Status)
	assert.Equal(t, "not-cached", res.Outcomes[0].Reason)
}

func TestRunBeforeProbeFails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	pkg := recipe.New("u")
	pkg.Sources = []string{"http://x/u.tar.gz"}
	pkg.Digests.SHA256 = []string{"abc"}
	e.register(t, pkg)

	_, err := e.cache.HTTPSURL(ctx, "http://x/u.tar.gz")
	var nc *urlcache.NotCachedError
	require.ErrorAs(t, err, &nc)

	res, err := e.classifier().Run(ctx, RunOptions{Progress: io.Discard})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusFailed, res.Outcomes[0].Status)
	assert.Equal(t, "not-cached", res.Outcomes[0].Reason)

	stored, err := e.packages.Get(ctx, "u")
	require.NoError(t, err)
	assert.Nil(t, stored.AnalyzedAt)

	// after the probe pass the same package is rated
	_, err = e.cache.ProbeAll(ctx, urlcache.ProbeOptions{Workers: 1, Progress: io.Discard})
	require.NoError(t, err)
	res, err = e.classifier().Run(ctx, RunOptions{Progress: io.Discard})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusAnalyzed, res.Outcomes[0].Status)
	assert.Equal(t, rating.Low, res.Outcomes[0].Security)
}
