package main

import (
	"sort"

	"github.com/samber/lo"
)

// registry maps group ids to their members. Empty groups are deleted, never
// kept. It is owned by the hub goroutine and is not safe for concurrent use.
type registry struct {
	groups map[string]*group
	// memberOf indexes each connection's groups so leave does not scan.
	memberOf map[*connection]map[string]struct{}
}

type groupInfo struct {
	Group   string `json:"group"`
	Members int    `json:"members"`
}

func newRegistry() *registry {
	return &registry{
		groups:   make(map[string]*group),
		memberOf: make(map[*connection]map[string]struct{}),
	}
}

// join adds c to the group, creating the group if needed. It is idempotent.
func (r *registry) join(groupID string, c *connection) *group {
	g, ok := r.groups[groupID]
	if !ok {
		g = newGroup(groupID)
		r.groups[groupID] = g
		incr("groups", 1)
	}
	if g.add(c) {
		ids, ok := r.memberOf[c]
		if !ok {
			ids = make(map[string]struct{})
			r.memberOf[c] = ids
		}
		ids[groupID] = struct{}{}
	}
	return g
}

// leave removes c from every group it joined and returns the groups that
// were deleted because c was their last member.
func (r *registry) leave(c *connection) []*group {
	ids, ok := r.memberOf[c]
	if !ok {
		return nil
	}
	delete(r.memberOf, c)

	var deleted []*group
	for id := range ids {
		g, ok := r.groups[id]
		if !ok {
			continue
		}
		g.remove(c)
		if g.size() == 0 {
			delete(r.groups, id)
			decr("groups", 1)
			deleted = append(deleted, g)
		}
	}
	return deleted
}

func (r *registry) lookup(groupID string) (*group, bool) {
	g, ok := r.groups[groupID]
	return g, ok
}

func (r *registry) size(groupID string) int {
	if g, ok := r.groups[groupID]; ok {
		return g.size()
	}
	return 0
}

// membersExcept returns a point-in-time copy of the group's members other
// than c. c may be nil.
func (r *registry) membersExcept(groupID string, c *connection) []*connection {
	g, ok := r.groups[groupID]
	if !ok {
		return nil
	}
	return lo.Filter(lo.Keys(g.members), func(member *connection, _ int) bool {
		return member != c
	})
}

// list returns every group and its member count, sorted by group id.
func (r *registry) list() []groupInfo {
	infos := lo.MapToSlice(r.groups, func(id string, g *group) groupInfo {
		return groupInfo{Group: id, Members: g.size()}
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Group < infos[j].Group })
	return infos
}

func (r *registry) groupsOf(c *connection) []string {
	ids := lo.Keys(r.memberOf[c])
	sort.Strings(ids)
	return ids
}
