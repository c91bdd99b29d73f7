// Package classifier rates packages by combining the four security signals
// and runs the rating over the whole package table.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/open-edge-platform/srcsec/internal/analyzer"
	"github.com/open-edge-platform/srcsec/internal/rating"
	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/open-edge-platform/srcsec/internal/store"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
	"github.com/schollz/progressbar/v3"
)

// Classifier rates package records and writes the result back.
type Classifier struct {
	table    store.Table[recipe.Package]
	analyzer *analyzer.Analyzer
	force    bool
	now      func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithForce re-rates packages that already carry an analysis timestamp.
func WithForce(force bool) Option {
	return func(c *Classifier) { c.force = force }
}

// WithClock sets the clock used for the analysis timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// New creates a Classifier.
func New(table store.Table[recipe.Package], a *analyzer.Analyzer, opts ...Option) *Classifier {
	c := &Classifier{table: table, analyzer: a, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify computes the signals of pkg. It returns the rated copy and
// whether anything was computed; an already analyzed package is returned
// untouched unless force is set. On error pkg is returned unchanged.
func (c *Classifier) Classify(ctx context.Context, pkg recipe.Package) (recipe.Package, bool, error) {
	if pkg.Analyzed() && !c.force {
		return pkg, false, nil
	}

	out := pkg
	out.ResetAnalysis()

	if len(out.Sources) > 0 {
		sources := out.ParsedSources()

		h, err := analyzer.Hash(out.Name, out.Digests, sources)
		if err != nil {
			return pkg, false, err
		}
		out.SecHash = h

		// local-only recipes have no transport or signing surface
		if !out.LocalOnly() {
			g, err := c.analyzer.GPG(ctx, out.Name, out.ValidGPGKeys)
			if err != nil {
				return pkg, false, err
			}
			out.SecGPG = g

			s, sigs, err := c.analyzer.Signature(ctx, sources, g)
			if err != nil {
				return pkg, false, err
			}
			out.SecSig = s
			out.AvailableSignatures = sigs

			t, https, err := c.analyzer.HTTPS(ctx, sources, out.UpstreamURL)
			if err != nil {
				return pkg, false, err
			}
			out.SecHTTPS = t
			out.AvailableHTTPS = https
		}
	}

	out.Security = rating.Merge(rating.Signals{
		Hash:  out.SecHash,
		GPG:   out.SecGPG,
		Sig:   out.SecSig,
		HTTPS: out.SecHTTPS,
	})
	now := c.now().UTC()
	out.AnalyzedAt = &now

	logger.Logger().Debugw("rated package", "package", out.Name,
		"hash", out.SecHash, "gpg", out.SecGPG, "sig", out.SecSig, "https", out.SecHTTPS, "security", out.Security)
	return out, true, nil
}

// OutcomeStatus is the result of one package in a batch.
type OutcomeStatus string

const (
	StatusAnalyzed OutcomeStatus = "analyzed"
	StatusSkipped  OutcomeStatus = "skipped"
	StatusFailed   OutcomeStatus = "failed"
)

// Outcome reports what happened to one package.
type Outcome struct {
	Package  string        `json:"package"`
	Status   OutcomeStatus `json:"status"`
	Security rating.Rating `json:"security"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of a batch run.
type Result struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Analyzed   int       `json:"analyzed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Err summarises failed packages as one error, or nil.
func (r *Result) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d packages failed to classify", r.Failed, len(r.Outcomes))
}

func (r *Result) add(o Outcome) {
	switch o.Status {
	case StatusAnalyzed:
		r.Analyzed++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// RunOptions selects what Run rates.
type RunOptions struct {
	// Packages limits the run to the named packages. Empty means every
	// package that still needs rating.
	Packages []string
	Progress io.Writer
}

// Run rates a batch of packages. A package that fails is reported in its
// outcome and left without an analysis timestamp so the next run retries it;
// the batch always continues with the next package. Only store failures and
// cancellation abort the run. This deliberately replaces stopping the whole
// process on the first unratable package.
func (c *Classifier) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	log := logger.Logger()
	res := &Result{RunID: uuid.NewString(), StartedAt: c.now().UTC()}
	log.Infow("starting classification", "run", res.RunID, "force", c.force)

	pending, total, err := c.pending(ctx, opts.Packages)
	if err != nil {
		return res, err
	}

	out := opts.Progress
	if out == nil {
		out = os.Stderr
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetDescription("classifying"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
	defer bar.Finish()

	for pkg, err := range pending {
		if err != nil {
			return res, err
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_ = bar.Add(1)

		rated, changed, err := c.Classify(ctx, pkg)
		if err != nil {
			if !analyzer.IsFatal(err) {
				return res, fmt.Errorf("classifying %s: %w", pkg.Name, err)
			}
			log.Errorw("failed to classify package", "run", res.RunID, "package", pkg.Name, "error", err)
			res.add(Outcome{Package: pkg.Name, Status: StatusFailed, Security: pkg.Security, Reason: analyzer.Reason(err), Error: err.Error()})
			continue
		}
		if !changed {
			res.add(Outcome{Package: pkg.Name, Status: StatusSkipped, Security: pkg.Security})
			continue
		}
		if _, err := c.table.Upsert(ctx, rated); err != nil {
			return res, fmt.Errorf("storing package %s: %w", pkg.Name, err)
		}
		res.add(Outcome{Package: rated.Name, Status: StatusAnalyzed, Security: rated.Security})
	}

	res.FinishedAt = c.now().UTC()
	log.Infow("classification finished", "run", res.RunID,
		"analyzed", res.Analyzed, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// pending returns the packages to visit and their count. Named packages are
// all visited so that the skip is reported; otherwise analyzed packages are
// filtered out up front unless force is set.
func (c *Classifier) pending(ctx context.Context, names []string) (iter.Seq2[recipe.Package, error], int, error) {
	if len(names) > 0 {
		pkgs := make([]recipe.Package, 0, len(names))
		for _, name := range names {
			pkg, err := c.table.Get(ctx, name)
			if errors.Is(err, store.ErrNotFound) {
				return nil, 0, fmt.Errorf("package %s not found", name)
			}
			if err != nil {
				return nil, 0, err
			}
			pkgs = append(pkgs, pkg)
		}
		return func(yield func(recipe.Package, error) bool) {
			for _, p := range pkgs {
				if !yield(p, nil) {
					return
				}
			}
		}, len(pkgs), nil
	}

	match := func(p recipe.Package) bool { return c.force || !p.Analyzed() }
	seq := c.table.Query(ctx, match)
	total := 0
	for _, err := range seq {
		if err != nil {
			return nil, 0, err
		}
		total++
	}
	return seq, total, nil
}
