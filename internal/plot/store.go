package plot

// Store is the persistence port every component reads and writes through.
// Values are opaque byte slices keyed by string; the backing medium may be
// in-memory, a directory, sqlite, redis or an object store.
type Store interface {
	// Get returns the value stored under key.
	// found is false (and err nil) when the key does not exist.
	Get(key string) (value []byte, found bool, err error)

	// Set stores value under key, replacing any previous value.
	// Returns an error wrapping ErrQuotaExceeded when the backend's
	// capacity would be exceeded; nothing is written in that case.
	Set(key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error

	// Keys returns every stored key in lexical order.
	Keys() ([]string, error)
}
