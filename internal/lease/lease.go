// Package lease implements the lease database from spec §4.1: leases
// indexed by IP, client UID, and hardware address, grouped into pools
// whose member leases are kept in an expiry-ordered list split at an
// insertion point between never-yet-assigned ("free") leases and
// leases that have been handed out at least once.
package lease

import (
	"time"

	"dhcpd/internal/bytehash"
	"dhcpd/internal/slab"
)

// State is the lease lifecycle state from spec §3.
type State int

const (
	StateFree State = iota
	StateActive
	StateExpired
	StateReleased
	StateAbandoned
	StateReset
	StateBackup
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateReleased:
		return "released"
	case StateAbandoned:
		return "abandoned"
	case StateReset:
		return "reset"
	case StateBackup:
		return "backup"
	default:
		return "unknown"
	}
}

// Lease is one IPv4 address binding.
type Lease struct {
	Handle slab.Handle
	IP     [4]byte

	HWAddr   []byte
	ClientID []byte

	Starts time.Time
	Ends   time.Time
	State  State

	Pool slab.Handle
	Host slab.Handle // zero Handle if not bound to a host declaration

	BillingClass string // class name the lease is billed against, "" if none

	Dirty bool // needs a journal write before the next checkpoint
}

// Pool is a contiguous address range plus its expiry-ordered lease
// list. Leases at index [0, InsertionPoint) have never been assigned
// (State == StateFree) and are kept in the order they entered the free
// segment, so Order[0] is the earliest-added free lease; leases at
// [InsertionPoint, len(Order)) have been active at least once and are
// kept sorted ascending by Ends, so the soonest-to-expire lease is
// always Order[InsertionPoint] — the lease the allocator and the
// expiry sweep both want first.
type Pool struct {
	Handle slab.Handle
	Name   string
	Start  [4]byte
	End    [4]byte

	Order          []slab.Handle
	InsertionPoint int
}

func ipLess(a, b [4]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Contains reports whether ip falls within the pool's range.
func (p *Pool) Contains(ip [4]byte) bool {
	return !ipLess(ip, p.Start) && !ipLess(p.End, ip)
}

func (p *Pool) removeFromOrder(h slab.Handle) {
	for i, oh := range p.Order {
		if oh == h {
			p.Order = append(p.Order[:i], p.Order[i+1:]...)
			if i < p.InsertionPoint {
				p.InsertionPoint--
			}
			return
		}
	}
}

func (p *Pool) insertFree(h slab.Handle) {
	p.Order = append(p.Order, slab.Handle{})
	copy(p.Order[p.InsertionPoint+1:], p.Order[p.InsertionPoint:])
	p.Order[p.InsertionPoint] = h
	p.InsertionPoint++
}

func (p *Pool) insertActive(h slab.Handle, ends time.Time, arena *slab.Arena[Lease]) {
	lo, hi := p.InsertionPoint, len(p.Order)
	for lo < hi {
		mid := (lo + hi) / 2
		other, _ := arena.Get(p.Order[mid])
		if other.Ends.Before(ends) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	p.Order = append(p.Order, slab.Handle{})
	copy(p.Order[lo+1:], p.Order[lo:])
	p.Order[lo] = h
}

// Database is the full lease database: the lease arena, its three
// indexes, and the pools that own expiry ordering.
type Database struct {
	leases *slab.Arena[Lease]
	pools  *slab.Arena[Pool]

	byIP  *bytehash.Table[slab.Handle]
	byUID *bytehash.ChainTable[slab.Handle]
	byHW  *bytehash.ChainTable[slab.Handle]
}

// New creates an empty lease database.
func New() *Database {
	return &Database{
		leases: slab.NewArena[Lease](),
		pools:  slab.NewArena[Pool](),
		byIP:   bytehash.New[slab.Handle](64),
		byUID:  bytehash.NewChain[slab.Handle](64),
		byHW:   bytehash.NewChain[slab.Handle](64),
	}
}

// NewPool registers an address range and returns its handle.
func (db *Database) NewPool(name string, start, end [4]byte) slab.Handle {
	h := db.pools.Insert(Pool{Name: name, Start: start, End: end})
	p, _ := db.pools.Get(h)
	p.Handle = h
	db.pools.Set(h, p)
	return h
}

// Pool fetches a pool by handle.
func (db *Database) Pool(h slab.Handle) (*Pool, bool) {
	p, ok := db.pools.Get(h)
	if !ok {
		return nil, false
	}
	return &p, true
}

// AddFreeLease creates a new, never-assigned lease for ip in pool and
// splices it into the pool's free segment.
func (db *Database) AddFreeLease(poolHandle slab.Handle, ip [4]byte) slab.Handle {
	h := db.leases.Insert(Lease{IP: ip, State: StateFree, Pool: poolHandle})
	l, _ := db.leases.Get(h)
	l.Handle = h
	db.leases.Set(h, l)

	db.byIP.Set(ip[:], h)

	p, ok := db.pools.Get(poolHandle)
	if ok {
		p.insertFree(h)
		db.pools.Set(poolHandle, p)
	}
	return h
}

// ByIP looks up the lease bound to an address.
func (db *Database) ByIP(ip [4]byte) (Lease, bool) {
	h, ok := db.byIP.Get(ip[:])
	if !ok {
		return Lease{}, false
	}
	return db.leases.Get(h)
}

// ByUID looks up every lease currently associated with a client
// identifier (spec's by_uid index is multi-valued: a client may hold
// leases in more than one pool).
func (db *Database) ByUID(uid []byte) []Lease {
	handles := db.byUID.Chain(uid)
	out := make([]Lease, 0, len(handles))
	for _, h := range handles {
		if l, ok := db.leases.Get(h); ok {
			out = append(out, l)
		}
	}
	return out
}

// ByHW looks up every lease currently associated with a hardware
// address.
func (db *Database) ByHW(hw []byte) []Lease {
	handles := db.byHW.Chain(hw)
	out := make([]Lease, 0, len(handles))
	for _, h := range handles {
		if l, ok := db.leases.Get(h); ok {
			out = append(out, l)
		}
	}
	return out
}

// Get fetches a lease by handle.
func (db *Database) Get(h slab.Handle) (Lease, bool) {
	return db.leases.Get(h)
}

// All returns every lease currently held in the arena, for the admin
// API's read-only enumeration endpoints.
func (db *Database) All() []Lease {
	return db.leases.All()
}

// AllPools returns every registered pool.
func (db *Database) AllPools() []Pool {
	return db.pools.All()
}

// SupersedeRequest carries the fields a caller wants applied to a
// lease, mirroring spec §4.1's supersede_lease contract: every
// identity-bearing field is replaced wholesale, not merged.
type SupersedeRequest struct {
	HWAddr       []byte
	ClientID     []byte
	Starts       time.Time
	Ends         time.Time
	State        State
	Host         slab.Handle
	BillingClass string
}

// IdentityConflicts reports whether an unexpired existing lease's
// identity conflicts with a new claimant's, per spec §4.1 step 1: if
// the existing lease is still active or released and unexpired as of
// now, fail when both sides carry a client id and the ids differ, or
// when neither side carries a client id and the hardware addresses
// differ. A lease that has never been handed out (StateFree) or has
// already expired can never conflict — anyone may claim it.
func IdentityConflicts(existing Lease, uid, hw []byte, now time.Time) bool {
	if existing.State != StateActive && existing.State != StateReleased {
		return false
	}
	if !existing.Ends.After(now) {
		return false
	}
	hasExistingUID := len(existing.ClientID) > 0
	hasNewUID := len(uid) > 0
	switch {
	case hasExistingUID && hasNewUID:
		return string(existing.ClientID) != string(uid)
	case !hasExistingUID && !hasNewUID:
		return string(existing.HWAddr) != string(hw)
	default:
		return false
	}
}

// Supersede applies req to the lease at h, following the eight steps
// spec §4.1 requires of a correct implementation:
//
//  1. Load the current lease record and fail with no mutation if its
//     identity conflicts with req's (IdentityConflicts).
//  2. Detach it from its pool's expiry-ordered list.
//  3. Drop its current by_uid/by_hw index entries (they are about to
//     become stale or need re-keying).
//  4. Overwrite the identity-bearing fields from req.
//  5. Re-add by_uid/by_hw index entries for the new identity, unless
//     the new state carries no identity (e.g. a lease reset to Free).
//  6. Re-insert into the pool's ordered list: the free segment if the
//     new state is Free, the sorted active segment otherwise.
//  7. Mark the lease Dirty so the journal writes it before the next
//     checkpoint.
//  8. Persist the updated record into the arena.
func (db *Database) Supersede(h slab.Handle, req SupersedeRequest) bool {
	return db.supersede(h, req, true)
}

// SupersedeTrusted applies req without the IdentityConflicts check,
// for paths where the caller's input is already-authoritative history
// rather than a new claimant — journal replay at startup, in
// particular, must be able to reapply a sequence of historical
// identity changes against leases that are "active" only because an
// earlier record in the same replay just made them so.
func (db *Database) SupersedeTrusted(h slab.Handle, req SupersedeRequest) bool {
	return db.supersede(h, req, false)
}

func (db *Database) supersede(h slab.Handle, req SupersedeRequest, checkConflict bool) bool {
	l, ok := db.leases.Get(h) // 1
	if !ok {
		return false
	}
	// The conflict check only gates a new claim taking the lease to
	// Active: releasing, abandoning, or freeing a lease clears its
	// identity rather than asserting a rival one, so those transitions
	// never need to compare identities.
	if checkConflict && req.State == StateActive && IdentityConflicts(l, req.ClientID, req.HWAddr, req.Starts) {
		return false
	}

	p, hasPool := db.pools.Get(l.Pool)
	if hasPool {
		p.removeFromOrder(h) // 2
	}

	if len(l.ClientID) > 0 {
		db.byUID.Remove(l.ClientID, func(v slab.Handle) bool { return v == h }) // 3
	}
	if len(l.HWAddr) > 0 {
		db.byHW.Remove(l.HWAddr, func(v slab.Handle) bool { return v == h })
	}

	l.HWAddr = req.HWAddr // 4
	l.ClientID = req.ClientID
	l.Starts = req.Starts
	l.Ends = req.Ends
	l.State = req.State
	l.Host = req.Host
	l.BillingClass = req.BillingClass

	if req.State != StateFree {
		if len(l.ClientID) > 0 {
			db.byUID.Add(l.ClientID, h) // 5
		}
		if len(l.HWAddr) > 0 {
			db.byHW.Add(l.HWAddr, h)
		}
	}

	if hasPool {
		if req.State == StateFree {
			p.insertFree(h) // 6
		} else {
			p.insertActive(h, req.Ends, db.leases)
		}
		db.pools.Set(l.Pool, p)
	}

	l.Dirty = true // 7
	db.leases.Set(h, l) // 8
	return true
}

// Release transitions an active lease to Released, per spec §4.1: the
// address returns to circulation immediately rather than waiting out
// its negotiated lifetime.
func (db *Database) Release(h slab.Handle, now time.Time) bool {
	l, ok := db.leases.Get(h)
	if !ok {
		return false
	}
	return db.Supersede(h, SupersedeRequest{
		HWAddr: l.HWAddr, ClientID: l.ClientID, Starts: l.Starts,
		Ends: now, State: StateReleased, Host: l.Host, BillingClass: l.BillingClass,
	})
}

// Abandon marks a lease Abandoned (a DHCPDECLINE was received for it)
// and strips its identity indexes so it is never matched by a future
// client lookup, while the address itself stays reserved until an
// operator or the abandoned-lease timeout clears it.
func (db *Database) Abandon(h slab.Handle, now time.Time, quarantine time.Duration) bool {
	l, ok := db.leases.Get(h)
	if !ok {
		return false
	}
	return db.Supersede(h, SupersedeRequest{
		Starts: now, Ends: now.Add(quarantine), State: StateAbandoned,
	})
}

// Dissociate strips a lease's identity from the by_uid/by_hw indexes
// without altering its state.
func (db *Database) Dissociate(h slab.Handle) {
	l, ok := db.leases.Get(h)
	if !ok {
		return
	}
	if len(l.ClientID) > 0 {
		db.byUID.Remove(l.ClientID, func(v slab.Handle) bool { return v == h })
	}
	if len(l.HWAddr) > 0 {
		db.byHW.Remove(l.HWAddr, func(v slab.Handle) bool { return v == h })
	}
}

// ExpireSweep walks pool's active segment from the insertion point and
// transitions every lease whose Ends has passed now to StateExpired,
// stopping at the first lease still current — the list's sort order
// guarantees everything after it is still current too. The candidate
// handles are collected before any mutation, since Supersede reorders
// the very list being walked.
func (db *Database) ExpireSweep(poolHandle slab.Handle, now time.Time) []slab.Handle {
	p, ok := db.pools.Get(poolHandle)
	if !ok {
		return nil
	}
	var candidates []slab.Handle
	for i := p.InsertionPoint; i < len(p.Order); i++ {
		h := p.Order[i]
		l, ok := db.leases.Get(h)
		if !ok {
			continue
		}
		if l.Ends.After(now) {
			break
		}
		if l.State == StateActive || l.State == StateReleased {
			candidates = append(candidates, h)
		}
	}

	var expired []slab.Handle
	for _, h := range candidates {
		l, ok := db.leases.Get(h)
		if !ok {
			continue
		}
		db.Supersede(h, SupersedeRequest{
			Starts: l.Starts, Ends: l.Ends, State: StateExpired,
		})
		expired = append(expired, h)
	}
	return expired
}
