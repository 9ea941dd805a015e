// Package authkey holds the shared symmetric key table used to sign
// failover peer-link messages (spec §9's AuthKey entity: name,
// algorithm, secret). Persisted through db.GenericRepository, the
// teacher's JSON-over-bbolt store, adapted from its auth/session
// handling (handlers/auth.go) into a proper keyed-MAC table instead of
// a demo cookie check.
package authkey

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"dhcpd/db"
)

const bucket = "auth_keys"

// Algorithm names the MAC construction a key uses. HMAC-MD5 matches
// ISC dhcpd's own "omapi_key"/TSIG-style key algorithm.
type Algorithm string

const (
	AlgorithmHMACMD5 Algorithm = "HMAC-MD5"
)

// Key is one named shared secret.
type Key struct {
	Name      string    `json:"name"`
	Algorithm Algorithm `json:"algorithm"`
	Secret    []byte    `json:"secret"`
}

// Table is the persisted set of keys a server or failover peer-link
// knows about; every call reads or writes the bbolt store directly.
type Table struct {
	repo *db.GenericRepository[*Key]
}

// Open wires Table to a bbolt-backed database at path.
func Open(path string) (*Table, *db.BoltDB, error) {
	bdb, err := db.NewBoltDB(path, bucket)
	if err != nil {
		return nil, nil, fmt.Errorf("open key table: %w", err)
	}
	return &Table{repo: db.NewGenericRepository[*Key](bdb, bucket)}, bdb, nil
}

// Put stores or replaces a key.
func (t *Table) Put(ctx context.Context, k *Key) error {
	return t.repo.Save(ctx, k.Name, k)
}

// Get looks up a key by name.
func (t *Table) Get(ctx context.Context, name string) (*Key, error) {
	return t.repo.Get(ctx, name)
}

// Delete removes a key by name.
func (t *Table) Delete(ctx context.Context, name string) error {
	return t.repo.Delete(ctx, name)
}

// All returns every key in the table, keyed by name.
func (t *Table) All(ctx context.Context) (map[string]*Key, error) {
	return t.repo.GetAll(ctx)
}

// Sign computes the MAC of msg under k, for tagging outbound
// failover peer-link frames.
func Sign(k *Key, msg []byte) ([]byte, error) {
	switch k.Algorithm {
	case AlgorithmHMACMD5:
		mac := hmac.New(md5.New, k.Secret)
		mac.Write(msg)
		return mac.Sum(nil), nil
	default:
		return nil, fmt.Errorf("unsupported key algorithm %q", k.Algorithm)
	}
}

// Verify checks that sig is the correct MAC of msg under k, in
// constant time.
func Verify(k *Key, msg, sig []byte) (bool, error) {
	want, err := Sign(k, msg)
	if err != nil {
		return false, err
	}
	return hmac.Equal(want, sig), nil
}

// Hex renders a signature as lowercase hex, the form dhcpd.conf-style
// key statements and the control socket print in.
func Hex(sig []byte) string { return hex.EncodeToString(sig) }
