package flow

import "sync"

// A Classifier maps packets to flows. The first packet of a new 5-tuple
// creates the flow; every later packet with the same 5-tuple maps to the same
// FlowID.
type Classifier struct {
	lock sync.RWMutex
	ids  map[FlowKey]FlowID
	keys []FlowKey
}

// NewClassifier creates an empty Classifier.
func NewClassifier() *Classifier {
	return &Classifier{
		ids: make(map[FlowKey]FlowID),
	}
}

// Classify returns the flow the packet belongs to.
func (c *Classifier) Classify(p PacketDescriptor) (FlowID, error) {
	id, _, err := c.classify(p)
	return id, err
}

// classify also tells if the flow was created by this call.
func (c *Classifier) classify(p PacketDescriptor) (FlowID, bool, error) {
	if err := p.Validate(); err != nil {
		return 0, false, err
	}

	key := KeyOf(p)

	c.lock.Lock()
	defer c.lock.Unlock()

	if id, found := c.ids[key]; found {
		return id, false, nil
	}

	c.keys = append(c.keys, key)
	id := FlowID(len(c.keys))
	c.ids[key] = id

	return id, true, nil
}

// FindFlow returns the 5-tuple of a flow.
func (c *Classifier) FindFlow(id FlowID) (FlowKey, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if id == 0 || int(id) > len(c.keys) {
		return FlowKey{}, false
	}

	return c.keys[id-1], true
}

// Lookup returns the id of an already known flow.
func (c *Classifier) Lookup(k FlowKey) (FlowID, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	id, found := c.ids[k]

	return id, found
}

// NumFlows returns the number of flows seen so far.
func (c *Classifier) NumFlows() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return len(c.keys)
}

// Reset forgets every flow. The next new flow gets id 1 again.
func (c *Classifier) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.ids = make(map[FlowKey]FlowID)
	c.keys = nil
}
