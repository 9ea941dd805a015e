package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dhcpd/internal/slab"
)

func TestAddFreeLeaseRegistersByIPAndPool(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 3})

	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})

	l, ok := db.ByIP([4]byte{10, 0, 0, 1})
	require.True(t, ok)
	require.Equal(t, h, l.Handle)
	require.Equal(t, StateFree, l.State)

	p, ok := db.Pool(pool)
	require.True(t, ok)
	require.Equal(t, 1, p.InsertionPoint)
	require.Contains(t, p.Order, h)
}

func TestSupersedeOverwritesIdentityAndReindexes(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 1})
	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})

	now := time.Now()
	ok := db.Supersede(h, SupersedeRequest{
		HWAddr: []byte{0xde, 0xad, 0xbe, 0xef, 0, 1},
		Starts: now, Ends: now.Add(time.Hour), State: StateActive,
	})
	require.True(t, ok)

	matches := db.ByHW([]byte{0xde, 0xad, 0xbe, 0xef, 0, 1})
	require.Len(t, matches, 1)
	require.Equal(t, h, matches[0].Handle)

	l, _ := db.Get(h)
	require.True(t, l.Dirty)
	require.Equal(t, StateActive, l.State)

	p, _ := db.Pool(pool)
	require.Equal(t, 0, p.InsertionPoint, "active lease must leave the free segment")
}

func TestSupersedeRejectsConflictingClaimOnUnexpiredLease(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 1})
	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})

	now := time.Now()
	require.True(t, db.Supersede(h, SupersedeRequest{
		HWAddr: []byte{1, 2, 3, 4, 5, 6}, ClientID: []byte("owner"), Starts: now, Ends: now.Add(time.Hour), State: StateActive,
	}))
	before, _ := db.Get(h)

	// Same hardware address, different client id: a real identity
	// conflict per spec §4.1 step 1.
	ok := db.Supersede(h, SupersedeRequest{
		HWAddr: []byte{1, 2, 3, 4, 5, 6}, ClientID: []byte("intruder"),
		Starts: now.Add(time.Minute), Ends: now.Add(2 * time.Hour), State: StateActive,
	})
	require.False(t, ok)

	l, _ := db.Get(h)
	require.Equal(t, before, l, "a rejected claim must leave the lease untouched")
	require.Equal(t, []byte("owner"), l.ClientID)
}

func TestSupersedeAllowsConflictingClaimOnceExpired(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 1})
	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})

	now := time.Now()
	db.Supersede(h, SupersedeRequest{
		HWAddr: []byte{1, 2, 3, 4, 5, 6}, Starts: now.Add(-2 * time.Hour), Ends: now.Add(-time.Hour), State: StateActive,
	})

	ok := db.Supersede(h, SupersedeRequest{
		HWAddr: []byte{9, 9, 9, 9, 9, 9}, Starts: now, Ends: now.Add(time.Hour), State: StateActive,
	})
	require.True(t, ok, "an expired lease must not block a new claimant")
}

func TestSupersedeTrustedBypassesConflictCheck(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 1})
	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})

	now := time.Now()
	db.Supersede(h, SupersedeRequest{
		HWAddr: []byte{1, 2, 3, 4, 5, 6}, Starts: now, Ends: now.Add(time.Hour), State: StateActive,
	})

	ok := db.SupersedeTrusted(h, SupersedeRequest{
		HWAddr: []byte{9, 9, 9, 9, 9, 9}, Starts: now.Add(time.Minute),
		Ends: now.Add(2 * time.Hour), State: StateActive,
	})
	require.True(t, ok, "journal replay must be able to reapply conflicting historical records")
}

func TestSupersedeBackToFreeDropsIdentityIndexes(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 1})
	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})

	now := time.Now()
	db.Supersede(h, SupersedeRequest{
		HWAddr: []byte{1, 2, 3, 4, 5, 6}, Starts: now, Ends: now.Add(time.Hour), State: StateActive,
	})
	db.Supersede(h, SupersedeRequest{State: StateFree})

	require.Empty(t, db.ByHW([]byte{1, 2, 3, 4, 5, 6}))
	l, _ := db.Get(h)
	require.Equal(t, StateFree, l.State)

	p, _ := db.Pool(pool)
	require.Equal(t, 1, p.InsertionPoint)
}

func TestReleaseTransitionsActiveLeaseImmediately(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 1})
	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})

	now := time.Now()
	db.Supersede(h, SupersedeRequest{
		ClientID: []byte("client-1"), Starts: now, Ends: now.Add(time.Hour), State: StateActive,
	})

	require.True(t, db.Release(h, now))
	l, _ := db.Get(h)
	require.Equal(t, StateReleased, l.State)
	require.Equal(t, now, l.Ends)
}

func TestAbandonQuarantinesAndStripsIdentity(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 1})
	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})

	now := time.Now()
	db.Supersede(h, SupersedeRequest{
		HWAddr: []byte{1, 2, 3, 4, 5, 6}, Starts: now, Ends: now.Add(time.Hour), State: StateActive,
	})

	require.True(t, db.Abandon(h, now, 10*time.Minute))

	l, _ := db.Get(h)
	require.Equal(t, StateAbandoned, l.State)
	require.Equal(t, now.Add(10*time.Minute), l.Ends)
	require.Empty(t, db.ByHW([]byte{1, 2, 3, 4, 5, 6}))
}

func TestDissociateStripsIdentityWithoutChangingState(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 1})
	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})

	now := time.Now()
	db.Supersede(h, SupersedeRequest{
		ClientID: []byte("old-client"), Starts: now, Ends: now.Add(time.Hour), State: StateActive,
	})

	db.Dissociate(h)

	require.Empty(t, db.ByUID([]byte("old-client")))
	l, _ := db.Get(h)
	require.Equal(t, StateActive, l.State, "dissociate must not change lifecycle state")
}

func TestExpireSweepStopsAtFirstStillCurrentLease(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 3})
	h1 := db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})
	h2 := db.AddFreeLease(pool, [4]byte{10, 0, 0, 2})
	h3 := db.AddFreeLease(pool, [4]byte{10, 0, 0, 3})

	now := time.Now()
	db.Supersede(h1, SupersedeRequest{Starts: now.Add(-2 * time.Hour), Ends: now.Add(-time.Hour), State: StateActive})
	db.Supersede(h2, SupersedeRequest{Starts: now.Add(-2 * time.Hour), Ends: now.Add(-time.Minute), State: StateActive})
	db.Supersede(h3, SupersedeRequest{Starts: now, Ends: now.Add(time.Hour), State: StateActive})

	expired := db.ExpireSweep(pool, now)
	require.ElementsMatch(t, []slab.Handle{h1, h2}, expired)

	l3, _ := db.Get(h3)
	require.Equal(t, StateActive, l3.State)
}

func TestAllAndAllPoolsEnumerateEverything(t *testing.T) {
	db := New()
	pool := db.NewPool("test", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2})
	db.AddFreeLease(pool, [4]byte{10, 0, 0, 1})
	db.AddFreeLease(pool, [4]byte{10, 0, 0, 2})

	require.Len(t, db.All(), 2)
	require.Len(t, db.AllPools(), 1)
}
