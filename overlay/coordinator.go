// Package overlay decides which floating editor overlay may be visible and
// where it is placed.
package overlay

import (
	"fmt"
	"sync"
)

// Kind identifies a class of floating overlay.
type Kind int

const (
	None Kind = iota
	LocalSuggestion
	RemoteSuggestion
	SelectionTools
	DictionaryPopup
)

var kindNames = [...]string{
	None:             "none",
	LocalSuggestion:  "local-suggestion",
	RemoteSuggestion: "remote-suggestion",
	SelectionTools:   "selection-tools",
	DictionaryPopup:  "dictionary-popup",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name for JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind returns the Kind with the given name.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return None, fmt.Errorf("overlay: unknown kind %q", name)
}

// Listener observes changes of the active kind.
type Listener func(prev, next Kind)

// Coordinator is a last-writer-wins register holding the single active
// overlay kind. Setting a kind implicitly closes every other kind.
type Coordinator struct {
	mu         sync.Mutex
	active     Kind
	nextID     int
	listeners  []listenerEntry
	pending    []change
	delivering bool
}

type change struct {
	prev, next Kind
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewCoordinator returns a Coordinator with no active overlay.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// SetActive makes k the only active overlay. SetActive(None) clears
// unconditionally; producers dismissing their own overlay should use Release.
func (c *Coordinator) SetActive(k Kind) {
	c.mu.Lock()
	c.queueLocked(c.active, k)
	c.active = k
	c.mu.Unlock()
	c.deliver()
}

// Release clears the active slot only if k currently owns it. It reports
// whether anything was cleared.
func (c *Coordinator) Release(k Kind) bool {
	if k == None {
		return false
	}
	c.mu.Lock()
	if c.active != k {
		c.mu.Unlock()
		return false
	}
	c.queueLocked(k, None)
	c.active = None
	c.mu.Unlock()
	c.deliver()
	return true
}

// Reset clears whatever overlay is active.
func (c *Coordinator) Reset() {
	c.SetActive(None)
}

// CanShow reports whether k may render: nothing is active, or k already is.
func (c *Coordinator) CanShow(k Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == None || c.active == k
}

// Active returns the current kind.
func (c *Coordinator) Active() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Subscribe registers fn for changes of the active kind. Listeners run in
// registration order after the change, outside the coordinator's lock, and
// only when the kind actually changed. Changes are delivered one at a time
// in the order they were made; a change made while another goroutine (or
// an enclosing listener) is delivering is handed to that deliverer, so the
// last event a listener sees always matches Active.
func (c *Coordinator) Subscribe(fn Listener) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Coordinator) queueLocked(prev, next Kind) {
	if prev != next {
		c.pending = append(c.pending, change{prev: prev, next: next})
	}
}

// deliver drains the pending changes unless someone else already is.
func (c *Coordinator) deliver() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		ls := make([]listenerEntry, len(c.listeners))
		copy(ls, c.listeners)
		c.mu.Unlock()
		for _, l := range ls {
			l.fn(ev.prev, ev.next)
		}
		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}
