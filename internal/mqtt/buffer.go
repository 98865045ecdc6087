package mqtt

import "log"

// outgoing is a serialized message held for replay after a reconnect.
type outgoing struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When
// full, the oldest message is overwritten. Callers synchronize.
type outbox struct {
	slots   []outgoing
	next    int // next write position
	n       int
	dropped int // overwritten since the last take
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{slots: make([]outgoing, capacity)}
}

func (o *outbox) put(msg outgoing) {
	if o.n == len(o.slots) {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", len(o.slots))
		}
		o.dropped++
	} else {
		o.n++
	}
	o.slots[o.next] = msg
	o.next = (o.next + 1) % len(o.slots)
}

// take empties the outbox and returns its messages oldest first, plus how
// many were lost to overflow.
func (o *outbox) take() ([]outgoing, int) {
	if o.n == 0 {
		return nil, 0
	}
	out := make([]outgoing, 0, o.n)
	first := (o.next - o.n + len(o.slots)) % len(o.slots)
	for i := 0; i < o.n; i++ {
		out = append(out, o.slots[(first+i)%len(o.slots)])
	}
	dropped := o.dropped
	o.n, o.next, o.dropped = 0, 0, 0
	return out, dropped
}

func (o *outbox) len() int {
	return o.n
}
