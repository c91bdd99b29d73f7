// Package keystore holds the OpenPGP key facts the GPG analyzer rates
// fingerprints against.
package keystore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/open-edge-platform/srcsec/internal/store"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
)

// OpenPGP public-key algorithm ids (RFC 4880 / RFC 9580).
const (
	AlgoRSA        = 1
	AlgoRSAEncrypt = 2
	AlgoRSASign    = 3
	AlgoElGamal    = 16
	AlgoDSA        = 17
	AlgoECDH       = 18
	AlgoECDSA      = 19
	AlgoEdDSA      = 22
)

// KeyFact describes one public key.
type KeyFact struct {
	Fingerprint string    `json:"fingerprint"`
	Algorithm   string    `json:"algorithm"`
	Length      int       `json:"length"`
	Expires     int64     `json:"expires"` // unix seconds, 0 = never
	CreatedAt   time.Time `json:"createdAt"`
	KeyID       string    `json:"keyId,omitempty"`
	UIDs        []string  `json:"uids,omitempty"`
}

// Key is the table key of a key fact.
func Key(k KeyFact) string { return k.Fingerprint }

// AlgorithmID returns the numeric algorithm id.
func (k KeyFact) AlgorithmID() (int, error) {
	id, err := strconv.Atoi(k.Algorithm)
	if err != nil {
		return 0, fmt.Errorf("key %s: invalid algorithm %q", k.Fingerprint, k.Algorithm)
	}
	return id, nil
}

// Expired reports whether the key expired before now. A key is still valid
// during its expiry second.
func (k KeyFact) Expired(now time.Time) bool {
	return k.Expires != 0 && k.Expires < now.Unix()
}

// AlgorithmName renders an algorithm id as a short human-readable name.
func AlgorithmName(algorithm string) string {
	id, err := strconv.Atoi(algorithm)
	if err != nil {
		return algorithm
	}
	switch id {
	case AlgoRSA, AlgoRSAEncrypt, AlgoRSASign:
		return "RSA"
	case AlgoElGamal:
		return "ElGamal"
	case AlgoDSA:
		return "DSA"
	case AlgoECDH:
		return "ECDH"
	case AlgoECDSA:
		return "ECDSA"
	case AlgoEdDSA:
		return "EdDSA"
	default:
		return "ALG" + algorithm
	}
}

// Store is the key fact table.
type Store struct {
	table store.Table[KeyFact]
}

// New wraps a key fact table.
func New(table store.Table[KeyFact]) *Store {
	return &Store{table: table}
}

// Lookup returns the fact for fingerprint. ok is false when no fact is stored.
func (s *Store) Lookup(ctx context.Context, fingerprint string) (KeyFact, bool, error) {
	k, err := s.table.Get(ctx, strings.ToUpper(fingerprint))
	if errors.Is(err, store.ErrNotFound) {
		return KeyFact{}, false, nil
	}
	if err != nil {
		return KeyFact{}, false, fmt.Errorf("looking up key %s: %w", fingerprint, err)
	}
	return k, true, nil
}

// Put stores a fact, replacing any previous one.
func (s *Store) Put(ctx context.Context, k KeyFact) (store.Status, error) {
	k.Fingerprint = strings.ToUpper(k.Fingerprint)
	return s.table.Upsert(ctx, k)
}

// SyncStats summarises a keyring import.
type SyncStats struct {
	Keys     int `json:"keys"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Unwanted int `json:"unwanted"`
}

// SyncFile imports an armored or binary keyring file.
func (s *Store) SyncFile(ctx context.Context, path string, want map[string]bool, force bool) (SyncStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SyncStats{}, fmt.Errorf("failed to read keyring: %w", err)
	}
	return s.Sync(ctx, data, want, force)
}

// Sync imports the primary keys of a keyring. When want is non-empty only
// those fingerprints are stored. Known keys are left alone unless force is set.
func (s *Store) Sync(ctx context.Context, keyring []byte, want map[string]bool, force bool) (SyncStats, error) {
	log := logger.Logger()
	var stats SyncStats

	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(keyring))
	if err != nil {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(keyring))
		if err != nil {
			return stats, fmt.Errorf("failed to read keyring: %w", err)
		}
	}

	for _, e := range entities {
		fact, err := factFromEntity(e)
		if err != nil {
			log.Warnf("skipping key: %v", err)
			continue
		}
		stats.Keys++
		if len(want) > 0 && !want[fact.Fingerprint] {
			stats.Unwanted++
			continue
		}
		if !force {
			if _, ok, err := s.Lookup(ctx, fact.Fingerprint); err != nil {
				return stats, err
			} else if ok {
				stats.Skipped++
				continue
			}
		}
		status, err := s.Put(ctx, fact)
		if err != nil {
			return stats, fmt.Errorf("storing key %s: %w", fact.Fingerprint, err)
		}
		switch status {
		case store.Inserted:
			stats.Inserted++
		case store.Updated:
			stats.Updated++
		}
	}
	return stats, nil
}

func factFromEntity(e *openpgp.Entity) (KeyFact, error) {
	pk := e.PrimaryKey
	if pk == nil {
		return KeyFact{}, fmt.Errorf("entity without primary key")
	}
	fp := fmt.Sprintf("%X", pk.Fingerprint)

	bits, err := pk.BitLength()
	if err != nil {
		return KeyFact{}, fmt.Errorf("key %s: %w", fp, err)
	}
	length := int(bits)
	// EdDSA public points carry a one-byte native-encoding prefix
	if pk.PubKeyAlgo == packet.PubKeyAlgoEdDSA && length > 7 && (length-7)%8 == 0 {
		length -= 7
	}

	fact := KeyFact{
		Fingerprint: fp,
		Algorithm:   strconv.Itoa(int(pk.PubKeyAlgo)),
		Length:      length,
		CreatedAt:   pk.CreationTime.UTC(),
		KeyID:       fmt.Sprintf("%016X", pk.KeyId),
	}
	for name := range e.Identities {
		fact.UIDs = append(fact.UIDs, name)
	}
	sort.Strings(fact.UIDs)

	if id := e.PrimaryIdentity(); id != nil && id.SelfSignature != nil {
		if lt := id.SelfSignature.KeyLifetimeSecs; lt != nil && *lt != 0 {
			fact.Expires = pk.CreationTime.Add(time.Duration(*lt) * time.Second).Unix()
		}
	}
	return fact, nil
}

// Missing returns the fingerprints for which no fact is stored.
func (s *Store) Missing(ctx context.Context, fingerprints []string) ([]string, error) {
	var out []string
	for _, fp := range fingerprints {
		_, ok, err := s.Lookup(ctx, fp)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, fp)
		}
	}
	return out, nil
}

// Distribution counts stored keys per "ALGO LENGTH" name, e.g. "RSA 4096".
func (s *Store) Distribution(ctx context.Context) (map[string]int, error) {
	dist := make(map[string]int)
	for k, err := range s.table.Query(ctx, nil) {
		if err != nil {
			return nil, err
		}
		dist[fmt.Sprintf("%s %d", AlgorithmName(k.Algorithm), k.Length)]++
	}
	return dist, nil
}
