package keystore

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/open-edge-platform/srcsec/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyring(t *testing.T, configs ...*packet.Config) ([]byte, []*openpgp.Entity) {
	t.Helper()

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)

	var entities []*openpgp.Entity
	for i, cfg := range configs {
		e, err := openpgp.NewEntity("Maintainer", "", "maintainer@example.org", cfg)
		require.NoError(t, err, "entity %d", i)
		require.NoError(t, e.Serialize(w))
		entities = append(entities, e)
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), entities
}

func newStore() *Store {
	return New(store.NewMemoryTable[KeyFact]("keys", Key))
}

func TestSyncRSAKeyWithExpiry(t *testing.T) {
	ctx := context.Background()
	ring, entities := newKeyring(t, &packet.Config{
		Algorithm:       packet.PubKeyAlgoRSA,
		RSABits:         2048,
		KeyLifetimeSecs: 3600,
	})
	s := newStore()

	stats, err := s.Sync(ctx, ring, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Keys)
	assert.Equal(t, 1, stats.Inserted)

	fp := bytesToHex(entities[0].PrimaryKey.Fingerprint)
	fact, ok, err := s.Lookup(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "1", fact.Algorithm)
	assert.Equal(t, 2048, fact.Length)
	assert.Equal(t, entities[0].PrimaryKey.CreationTime.Unix()+3600, fact.Expires)
	assert.Contains(t, fact.UIDs[0], "maintainer@example.org")
	assert.False(t, fact.Expired(entities[0].PrimaryKey.CreationTime))
	assert.True(t, fact.Expired(entities[0].PrimaryKey.CreationTime.Add(2*time.Hour)))

	// second sync leaves the known key alone
	stats, err = s.Sync(ctx, ring, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Inserted)
}

func TestExpiredBoundary(t *testing.T) {
	at := time.Unix(1700000000, 0)
	k := KeyFact{Expires: at.Unix()}

	assert.False(t, k.Expired(at.Add(-time.Second)))
	assert.False(t, k.Expired(at), "still valid during the expiry second")
	assert.True(t, k.Expired(at.Add(time.Second)))
	assert.False(t, KeyFact{}.Expired(at), "no expiry never expires")
}

func TestSyncEdDSAKeyLength(t *testing.T) {
	ctx := context.Background()
	ring, entities := newKeyring(t, &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	s := newStore()

	_, err := s.Sync(ctx, ring, nil, false)
	require.NoError(t, err)

	fact, ok, err := s.Lookup(ctx, bytesToHex(entities[0].PrimaryKey.Fingerprint))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "22", fact.Algorithm)
	assert.Equal(t, 256, fact.Length)
	assert.Zero(t, fact.Expires)
}

func TestSyncWantedOnly(t *testing.T) {
	ctx := context.Background()
	ring, entities := newKeyring(t,
		&packet.Config{Algorithm: packet.PubKeyAlgoEdDSA},
		&packet.Config{Algorithm: packet.PubKeyAlgoEdDSA},
	)
	s := newStore()
	wanted := bytesToHex(entities[1].PrimaryKey.Fingerprint)

	stats, err := s.Sync(ctx, ring, map[string]bool{wanted: true}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unwanted)
	assert.Equal(t, 1, stats.Inserted)

	missing, err := s.Missing(ctx, []string{
		bytesToHex(entities[0].PrimaryKey.Fingerprint),
		wanted,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{bytesToHex(entities[0].PrimaryKey.Fingerprint)}, missing)
}

func TestSyncRejectsGarbage(t *testing.T) {
	_, err := newStore().Sync(context.Background(), []byte("not a keyring"), nil, false)
	assert.Error(t, err)
}

func TestDistribution(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	for _, k := range []KeyFact{
		{Fingerprint: "A", Algorithm: "1", Length: 4096},
		{Fingerprint: "B", Algorithm: "1", Length: 4096},
		{Fingerprint: "C", Algorithm: "22", Length: 256},
		{Fingerprint: "D", Algorithm: "17", Length: 1024},
	} {
		_, err := s.Put(ctx, k)
		require.NoError(t, err)
	}

	dist, err := s.Distribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"RSA 4096": 2, "EdDSA 256": 1, "DSA 1024": 1}, dist)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	_, err := s.Put(ctx, KeyFact{Fingerprint: "abcdef", Algorithm: "1", Length: 4096})
	require.NoError(t, err)

	_, ok, err := s.Lookup(ctx, "ABCDEF")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = s.Lookup(ctx, "012345")
	require.NoError(t, err)
	assert.False(t, ok)
}

func bytesToHex(b []byte) string { return fmt.Sprintf("%X", b) }
