package main

// group is a named set of connections that receive each other's relays.
type group struct {
	id      string
	members connections
	// limiter is the group's own throttle when THROTTLE_SCOPE=group.
	limiter *throttle[relayJob]
}

type connections map[*connection]struct{}

func newGroup(id string) *group {
	return &group{
		id:      id,
		members: make(connections),
	}
}

func (g *group) add(c *connection) bool {
	if _, ok := g.members[c]; ok {
		return false
	}
	g.members[c] = struct{}{}
	return true
}

func (g *group) remove(c *connection) bool {
	if _, ok := g.members[c]; !ok {
		return false
	}
	delete(g.members, c)
	return true
}

func (g *group) size() int {
	return len(g.members)
}

// dispose releases the group's throttle once the group leaves the registry.
func (g *group) dispose() {
	if g.limiter != nil {
		g.limiter.stop()
		g.limiter = nil
	}
}
