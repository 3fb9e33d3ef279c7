package bus

import (
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// Rule inspects a message and proposes a different recipient. Returning
// false passes the message to the next rule unchanged.
type Rule func(msg core.Message) (string, bool)

// Router rewrites recipients in front of a bus, for meshes where senders
// address roles rather than concrete agents. Rules are consulted in
// registration order and the first match wins; with no match the message
// keeps its original recipient.
type Router struct {
	mu    sync.RWMutex
	bus   *Bus
	rules []Rule
}

// NewRouter creates a router that publishes to the given bus.
func NewRouter(b *Bus) *Router {
	return &Router{bus: b}
}

// AddRule appends a routing rule.
func (r *Router) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = append(r.rules, rule)
}

// Route publishes the message, rewritten by the first matching rule.
func (r *Router) Route(msg core.Message) {
	r.mu.RLock()
	rules := append([]Rule(nil), r.rules...)
	r.mu.RUnlock()

	for _, rule := range rules {
		if recipient, ok := rule(msg); ok {
			msg.Recipient = recipient

			break
		}
	}

	r.bus.Publish(msg)
}
