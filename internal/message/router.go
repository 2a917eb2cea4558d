package message

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Counter is the local sender's monotonically increasing 32-bit message
// id source. Safe for concurrent use across the unreliable
// and reliable sync loops, which both mint ids from the same sequence.
type Counter struct {
	next uint32
}

// Next returns the next id, wrapping per standard uint32 overflow (the
// sequence space is large enough that wraparound during one session is
// not a practical concern).
func (c *Counter) Next() uint32 {
	return atomic.AddUint32(&c.next, 1) - 1
}

// Router builds envelopes from a shared Counter and classifies them by
// destination channel.
type Router struct {
	counter *Counter
}

// NewRouter builds a Router over the given counter (share one Counter
// across both sync loops so ids stay globally monotonic).
func NewRouter(counter *Counter) *Router {
	return &Router{counter: counter}
}

// Build constructs a fresh envelope, stamping it with the next local id
// and a random correlation id (google/uuid) a peer can echo back in a
// response for request/response kinds such as IframeRequest.
func (r *Router) Build(kind Kind, payload []byte) Envelope {
	return Envelope{
		ID:            r.counter.Next(),
		Kind:          kind,
		CorrelationID: uuid.New(),
		Payload:       payload,
	}
}

// Dispatch classifies env by destination channel and validates the
// unreliable size constraint before handing it to sendReliable/
// sendUnreliable.
func (r *Router) Dispatch(env Envelope, sendReliable, sendUnreliable func(Envelope) error) error {
	if IsReliable(env.Kind) {
		return sendReliable(env)
	}
	if !env.FitsUnreliableDatagram() {
		return fmt.Errorf("message: kind %s envelope of %d bytes exceeds one unreliable datagram", env.Kind, headerSize+len(env.Payload))
	}
	return sendUnreliable(env)
}
