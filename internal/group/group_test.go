package group

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dhcpd/internal/options"
)

func TestWalkVisitsMostSpecificFirst(t *testing.T) {
	root := New(KindRoot, "", nil)
	subnet := New(KindSubnet, "10.0.0.0/24", root)
	pool := New(KindPool, "p1", subnet)

	var visited []string
	pool.Walk(func(g *Group) bool {
		visited = append(visited, g.Name)
		return true
	})
	require.Equal(t, []string{"p1", "10.0.0.0/24", ""}, visited)
}

func TestChildRegistersOnNew(t *testing.T) {
	root := New(KindRoot, "", nil)
	subnet := New(KindSubnet, "s1", root)

	got, ok := root.Child("s1")
	require.True(t, ok)
	require.Equal(t, subnet, got)

	_, ok = root.Child("missing")
	require.False(t, ok)
}

func TestResolveOptionMostSpecificWins(t *testing.T) {
	root := New(KindRoot, "", nil)
	root.Options.Set("dhcp", options.CodeDomainName, &options.Cache{Data: []byte("root\x00")})

	subnet := New(KindSubnet, "s1", root)
	subnet.Options.Set("dhcp", options.CodeDomainName, &options.Cache{Data: []byte("subnet\x00")})

	pool := New(KindPool, "p1", subnet)

	c, ok := pool.ResolveOption("dhcp", options.CodeDomainName)
	require.True(t, ok)
	require.Equal(t, "subnet\x00", string(c.Data))
}

func TestIsAuthoritative(t *testing.T) {
	root := New(KindRoot, "", nil)
	subnet := New(KindSubnet, "s1", root)
	subnet.Authoritative = true
	pool := New(KindPool, "p1", subnet)

	require.True(t, pool.IsAuthoritative())

	other := New(KindSubnet, "s2", root)
	otherPool := New(KindPool, "p2", other)
	require.False(t, otherPool.IsAuthoritative())
}

func TestClassBillAndRelease(t *testing.T) {
	root := New(KindRoot, "", nil)
	c := NewClass("vendor-x", nil, root)
	c.LeaseLimit = 1

	require.True(t, c.Bill())
	require.False(t, c.Bill())
	c.Release()
	require.True(t, c.Bill())
}

func TestClassBillUnlimited(t *testing.T) {
	root := New(KindRoot, "", nil)
	c := NewClass("vendor-y", nil, root)

	for i := 0; i < 1000; i++ {
		require.True(t, c.Bill())
	}
}

func TestSpawnSubclassReusesByKey(t *testing.T) {
	root := New(KindRoot, "", nil)
	c := NewClass("vendor-z", nil, root)
	c.LeaseLimit = 3

	sc1 := c.SpawnSubclass("abc")
	sc2 := c.SpawnSubclass("abc")
	require.Same(t, sc1, sc2)

	sc3 := c.SpawnSubclass("def")
	require.NotSame(t, sc1, sc3)
	require.Equal(t, 3, sc3.LeaseLimit)
}
