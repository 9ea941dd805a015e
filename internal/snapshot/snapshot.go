// Package snapshot is an auxiliary BoltDB-backed cache of the lease
// database's by_ip index, adapted from the teacher's db.BoltDB
// key/value wrapper. It exists purely to speed up process-restart
// warm-up: the lease journal (internal/journal) remains the single
// source of truth. Server startup replays the journal and then
// rebuilds the snapshot unconditionally; it does not consult
// Generation or Warm.
package snapshot

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"dhcpd/internal/lease"
)

const (
	bucketLeases     = "leases_by_ip"
	bucketMeta       = "meta"
	generationKey    = "generation"
)

// Cache wraps a bbolt database file holding the cached by_ip index.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if absent) the snapshot file at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o640, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	c := &Cache{db: db}
	if err := c.ensureBuckets(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) ensureBuckets() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketLeases)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		return err
	})
}

// Close closes the underlying bbolt file.
func (c *Cache) Close() error { return c.db.Close() }

// Generation returns the generation stamp recorded at last Rebuild, or
// 0 if the cache has never been populated.
func (c *Cache) Generation(ctx context.Context) (uint64, error) {
	var gen uint64
	err := c.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucketMeta))
		v := bkt.Get([]byte(generationKey))
		if len(v) == 8 {
			gen = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return gen, err
}

// Rebuild replaces the cached by_ip index wholesale from leases and
// stamps the new generation, so a later Generation check can tell
// whether this snapshot is still current relative to the journal.
func (c *Cache) Rebuild(ctx context.Context, generation uint64, leases []lease.Lease) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketLeases)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		bkt, err := tx.CreateBucket([]byte(bucketLeases))
		if err != nil {
			return err
		}
		for _, l := range leases {
			data, err := encodeLease(l)
			if err != nil {
				return err
			}
			if err := bkt.Put(l.IP[:], data); err != nil {
				return err
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		var genBytes [8]byte
		binary.BigEndian.PutUint64(genBytes[:], generation)
		return meta.Put([]byte(generationKey), genBytes[:])
	})
}

// Warm returns every cached lease record, for seeding a fresh
// lease.Database before the journal replay (or instead of it, when
// the generation stamp matches).
func (c *Cache) Warm(ctx context.Context) ([]lease.Lease, error) {
	var out []lease.Lease
	err := c.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucketLeases))
		return bkt.ForEach(func(k, v []byte) error {
			l, err := decodeLease(v)
			if err != nil {
				return err
			}
			out = append(out, l)
			return nil
		})
	})
	return out, err
}

func encodeLease(l lease.Lease) ([]byte, error) {
	// Fixed-width encoding: ip(4) state(1) startsUnix(8) endsUnix(8)
	// hwLen(1) hw clientLen(2) client.
	buf := make([]byte, 0, 4+1+8+8+1+len(l.HWAddr)+2+len(l.ClientID))
	buf = append(buf, l.IP[:]...)
	buf = append(buf, byte(l.State))
	var tbuf [8]byte
	binary.BigEndian.PutUint64(tbuf[:], uint64(l.Starts.Unix()))
	buf = append(buf, tbuf[:]...)
	binary.BigEndian.PutUint64(tbuf[:], uint64(l.Ends.Unix()))
	buf = append(buf, tbuf[:]...)
	buf = append(buf, byte(len(l.HWAddr)))
	buf = append(buf, l.HWAddr...)
	var lbuf [2]byte
	binary.BigEndian.PutUint16(lbuf[:], uint16(len(l.ClientID)))
	buf = append(buf, lbuf[:]...)
	buf = append(buf, l.ClientID...)
	return buf, nil
}

func decodeLease(b []byte) (lease.Lease, error) {
	var l lease.Lease
	if len(b) < 4+1+8+8+1 {
		return l, fmt.Errorf("snapshot: short record (%d bytes)", len(b))
	}
	copy(l.IP[:], b[0:4])
	l.State = lease.State(b[4])
	l.Starts = time.Unix(int64(binary.BigEndian.Uint64(b[5:13])), 0).UTC()
	l.Ends = time.Unix(int64(binary.BigEndian.Uint64(b[13:21])), 0).UTC()
	hwLen := int(b[21])
	off := 22
	if len(b) < off+hwLen+2 {
		return l, fmt.Errorf("snapshot: truncated hw field")
	}
	l.HWAddr = append([]byte(nil), b[off:off+hwLen]...)
	off += hwLen
	clientLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+clientLen {
		return l, fmt.Errorf("snapshot: truncated client-id field")
	}
	l.ClientID = append([]byte(nil), b[off:off+clientLen]...)
	return l, nil
}
