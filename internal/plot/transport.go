package plot

// Transport exchanges opaque update deltas between replicas. It performs no
// merge logic and makes no ordering or exactly-once promises: receivers must
// tolerate duplicated and reordered deliveries.
type Transport interface {
	// Send publishes delta to every other connected replica.
	Send(delta []byte) error

	// OnReceive registers the handler for incoming deltas. Deltas that
	// arrived before a handler was registered are queued and flushed to it.
	OnReceive(handler func(delta []byte))

	// Close disconnects from the channel. Queued deltas are discarded.
	Close() error
}
