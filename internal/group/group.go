// Package group implements the scope-chain tree from spec §3/§4.2:
// root -> shared-network -> subnet -> pool -> host -> class. Each
// scope carries its own option state and statement tree; lookups walk
// outward from the most specific scope to the root, matching the
// source's "more specific overrides less specific" rule.
package group

import (
	"dhcpd/internal/expr"
	"dhcpd/internal/options"
)

// Kind identifies a scope's position in the chain, used by lookup
// ordering and diagnostics.
type Kind int

const (
	KindRoot Kind = iota
	KindSharedNetwork
	KindSubnet
	KindPool
	KindHost
	KindClass
	KindSubclass
)

// Group is one node of the scope chain.
type Group struct {
	Kind     Kind
	Name     string
	Parent   *Group
	Children []*Group

	Options   *options.State // config-option cache for this scope
	Statement []*expr.Statement

	// Authoritative marks a subnet/shared-network as authoritative for
	// its address range (spec §4.2's DHCPNAK-on-foreign-lease rule).
	Authoritative bool
}

// New creates a scope node linked to its parent, registering itself in
// the parent's Children so the control socket can navigate down the
// tree as well as up it. A nil parent makes this the tree root.
func New(kind Kind, name string, parent *Group) *Group {
	g := &Group{Kind: kind, Name: name, Parent: parent, Options: options.NewState()}
	if parent != nil {
		parent.Children = append(parent.Children, g)
	}
	return g
}

// Child looks up a direct child scope by name.
func (g *Group) Child(name string) (*Group, bool) {
	for _, c := range g.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Walk calls fn for this scope and then every ancestor, most specific
// first, stopping early if fn returns false.
func (g *Group) Walk(fn func(*Group) bool) {
	for n := g; n != nil; n = n.Parent {
		if !fn(n) {
			return
		}
	}
}

// ResolveOption looks up a config-option by walking from this scope
// toward the root, returning the first (most specific) hit.
func (g *Group) ResolveOption(universe string, code uint8) (*options.Cache, bool) {
	var found *options.Cache
	g.Walk(func(n *Group) bool {
		if c, ok := n.Options.Get(universe, code); ok {
			found = c
			return false
		}
		return true
	})
	return found, found != nil
}

// IsAuthoritative reports whether any ancestor (inclusive) declares
// authority over this scope's address range.
func (g *Group) IsAuthoritative() bool {
	result := false
	g.Walk(func(n *Group) bool {
		if n.Authoritative {
			result = true
			return false
		}
		return true
	})
	return result
}

// Class is a client class: a match expression plus its own scope for
// config-options and a lease-limit bound (spec §4.2 "classing and
// billing"). Subclasses share a class's statements/limit but carry
// their own match key.
type Class struct {
	*Group
	Match      *expr.Expression
	LeaseLimit int // 0 means unlimited
	leasesOut  int

	Subclasses map[string]*Class
}

// NewClass creates a class whose scope chains up to parent (typically
// the tree root).
func NewClass(name string, match *expr.Expression, parent *Group) *Class {
	return &Class{
		Group:      New(KindClass, name, parent),
		Match:      match,
		Subclasses: make(map[string]*Class),
	}
}

// Matches evaluates the class's match expression against ctx.
func (c *Class) Matches(ctx *expr.Context) bool {
	if c.Match == nil {
		return false
	}
	b, tainted := c.Match.Eval(ctx).AsBool()
	return b && !tainted
}

// Bill reserves one lease against the class's limit, returning false
// if the class is already at capacity. Release gives it back.
func (c *Class) Bill() bool {
	if c.LeaseLimit == 0 {
		c.leasesOut++
		return true
	}
	if c.leasesOut >= c.LeaseLimit {
		return false
	}
	c.leasesOut++
	return true
}

// Release gives back one billed lease slot.
func (c *Class) Release() {
	if c.leasesOut > 0 {
		c.leasesOut--
	}
}

// SpawnSubclass creates or fetches the subclass keyed by the spawning
// expression's evaluated data (spec §4.2 "spawning classes").
func (c *Class) SpawnSubclass(key string) *Class {
	if sc, ok := c.Subclasses[key]; ok {
		return sc
	}
	sc := &Class{
		Group:      New(KindSubclass, c.Name+":"+key, c.Group),
		LeaseLimit: c.LeaseLimit,
	}
	c.Subclasses[key] = sc
	return sc
}
