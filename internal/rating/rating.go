// Package rating defines the ordered security rating shared by every signal
// and the rule that merges the four signals into one package rating.
package rating

import (
	"fmt"
	"strings"
)

// Rating is one of NA < LOW < MID < HIGH < EXCELLENT.
type Rating int

const (
	NA Rating = iota
	Low
	Mid
	High
	Excellent
)

// All lists every rating from strongest to weakest, the order reports use.
var All = []Rating{Excellent, High, Mid, Low, NA}

var names = map[Rating]string{
	NA:        "NA",
	Low:       "LOW",
	Mid:       "MID",
	High:      "HIGH",
	Excellent: "EXCELLENT",
}

func (r Rating) String() string {
	if s, ok := names[r]; ok {
		return s
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// Valid reports whether r is one of the five defined ratings.
func (r Rating) Valid() bool {
	_, ok := names[r]
	return ok
}

// AtLeastHigh reports whether r is HIGH or EXCELLENT.
func (r Rating) AtLeastHigh() bool {
	return r >= High
}

// Parse parses a rating name case-insensitively.
func Parse(s string) (Rating, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for r, name := range names {
		if name == want {
			return r, nil
		}
	}
	return NA, fmt.Errorf("invalid rating: %q", s)
}

// MarshalText stores ratings by name so persisted records stay readable.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid rating: %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Rating) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// WorstOf returns the weakest of the given ratings. With no arguments it
// returns NA.
func WorstOf(ratings ...Rating) Rating {
	if len(ratings) == 0 {
		return NA
	}
	worst := ratings[0]
	for _, r := range ratings[1:] {
		if r < worst {
			worst = r
		}
	}
	return worst
}

// Signals holds the four independently computed ratings of a package.
type Signals struct {
	Hash  Rating
	GPG   Rating
	Sig   Rating
	HTTPS Rating
}

// Merge combines the four signals. The clauses are evaluated top-down and the
// first match wins, so HTTPS alone can lift a package to MID even when the
// other signals are NA. This is not WorstOf.
func Merge(s Signals) Rating {
	switch {
	case s.Hash.AtLeastHigh() && s.GPG.AtLeastHigh() && s.Sig.AtLeastHigh() && s.HTTPS.AtLeastHigh():
		return Excellent
	case s.GPG.AtLeastHigh() && s.Sig.AtLeastHigh():
		return High
	case s.HTTPS.AtLeastHigh():
		return Mid
	case s.Hash != NA:
		return Low
	default:
		return NA
	}
}
