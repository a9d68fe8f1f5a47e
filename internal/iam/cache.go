package iam

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// caches bundles the two caches the engine keeps warm: resolved identities
// and a given agent's permission set. Both are invalidated together on
// any write to that agent's permissions, per spec.md's conservative
// invalidation rule.
type caches struct {
	identities  *gocache.Cache
	permissions *gocache.Cache
}

func newCaches(ttl time.Duration) *caches {
	cleanup := ttl * 2
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &caches{
		identities:  gocache.New(ttl, cleanup),
		permissions: gocache.New(ttl, cleanup),
	}
}

func (c *caches) getIdentity(id string) (*AgentIdentity, bool) {
	v, ok := c.identities.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*AgentIdentity), true
}

func (c *caches) putIdentity(identity *AgentIdentity) {
	c.identities.SetDefault(identity.ID, identity)
}

func (c *caches) getPermissions(agentID string) ([]Permission, bool) {
	v, ok := c.permissions.Get(agentID)
	if !ok {
		return nil, false
	}
	return v.([]Permission), true
}

func (c *caches) putPermissions(agentID string, perms []Permission) {
	c.permissions.SetDefault(agentID, perms)
}

// invalidate drops both cache entries for agentID, per the conservative
// invalidation rule: any permission write drops both caches for that agent.
func (c *caches) invalidate(agentID string) {
	c.identities.Delete(agentID)
	c.permissions.Delete(agentID)
}
