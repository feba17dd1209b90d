package backup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"plot-go/internal/plot"
)

// KeyPrefix starts every backup key.
const KeyPrefix = "migration-backup-"

// Discriminators name which logical store a backup holds.
const (
	Primary   = "allotment"
	Secondary = "varieties"
)

// ErrInvalidKey means a string does not follow the backup key convention.
var ErrInvalidKey = errors.New("invalid backup key format")

// Key identifies one backup: migration-backup-<unix-millis>-<discriminator>.
type Key struct {
	Millis        int64
	Discriminator string
}

// NewKey builds the key for a snapshot taken at t.
func NewKey(t time.Time, discriminator string) Key {
	return Key{Millis: t.UnixMilli(), Discriminator: discriminator}
}

func (k Key) String() string {
	return KeyPrefix + strconv.FormatInt(k.Millis, 10) + "-" + k.Discriminator
}

// Time returns the snapshot time encoded in the key.
func (k Key) Time() time.Time {
	return time.UnixMilli(k.Millis).UTC()
}

// Paired returns the key of the other half of the same snapshot pair.
func (k Key) Paired() Key {
	other := Secondary
	if k.Discriminator == Secondary {
		other = Primary
	}
	return Key{Millis: k.Millis, Discriminator: other}
}

// ParseKey validates s against the naming convention. The returned error
// wraps both ErrInvalidKey and plot.ErrRollbackTargetMissing.
func ParseKey(s string) (Key, error) {
	rest, ok := strings.CutPrefix(s, KeyPrefix)
	if !ok {
		return Key{}, invalid(s)
	}
	millis, disc, ok := strings.Cut(rest, "-")
	if !ok || (disc != Primary && disc != Secondary) {
		return Key{}, invalid(s)
	}
	n, err := strconv.ParseInt(millis, 10, 64)
	if err != nil || n <= 0 || strconv.FormatInt(n, 10) != millis {
		return Key{}, invalid(s)
	}
	return Key{Millis: n, Discriminator: disc}, nil
}

func invalid(s string) error {
	return fmt.Errorf("%w: %w: %q", plot.ErrRollbackTargetMissing, ErrInvalidKey, s)
}

// PairedKey returns the other half's key for a valid backup key string.
func PairedKey(s string) (string, error) {
	k, err := ParseKey(s)
	if err != nil {
		return "", err
	}
	return k.Paired().String(), nil
}

// IsKey reports whether s is a well-formed backup key.
func IsKey(s string) bool {
	_, err := ParseKey(s)
	return err == nil
}
