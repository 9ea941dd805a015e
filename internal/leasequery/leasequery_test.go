package leasequery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dhcpd/internal/lease"
)

func TestAnswerUnknownWhenNoMatch(t *testing.T) {
	h := &Handler{DB: lease.New()}
	mt, l := h.Answer(QueryByIP, []byte{10, 0, 0, 1})
	require.Equal(t, MsgLeaseUnknown, mt)
	require.Nil(t, l)
}

func TestAnswerActiveForCurrentLease(t *testing.T) {
	db := lease.New()
	pool := db.NewPool("p", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 10})
	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 5})
	now := time.Now()
	db.Supersede(h, lease.SupersedeRequest{
		HWAddr: []byte{1, 2, 3, 4, 5, 6}, Starts: now, Ends: now.Add(time.Hour), State: lease.StateActive,
	})

	handler := &Handler{DB: db}
	mt, l := handler.Answer(QueryByIP, []byte{10, 0, 0, 5})
	require.Equal(t, MsgLeaseActive, mt)
	require.NotNil(t, l)

	opts := BuildReplyOptions(l, now)
	require.Equal(t, [4]byte{10, 0, 0, 5}, opts.AssignedIP)
	require.InDelta(t, time.Hour.Seconds(), opts.LeaseTime.Seconds(), 1)
}

func TestAnswerUnassignedForExpiredLease(t *testing.T) {
	db := lease.New()
	pool := db.NewPool("p", [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 10})
	h := db.AddFreeLease(pool, [4]byte{10, 0, 0, 6})
	past := time.Now().Add(-time.Hour)
	db.Supersede(h, lease.SupersedeRequest{
		HWAddr: []byte{1, 2, 3, 4, 5, 6}, Starts: past, Ends: past.Add(time.Minute), State: lease.StateActive,
	})

	handler := &Handler{DB: db}
	mt, _ := handler.Answer(QueryByIP, []byte{10, 0, 0, 6})
	require.Equal(t, MsgLeaseUnassigned, mt)
}
