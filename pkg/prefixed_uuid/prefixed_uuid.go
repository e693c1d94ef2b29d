// Package prefixed_uuid generates identifiers such as "turn-<uuid>" whose prefix
// tells a reader of the logs what kind of object they name.
package prefixed_uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PrefixedUUID is a UUID tagged with a short kind prefix. The prefix never contains '-'.
type PrefixedUUID struct {
	Prefix string
	UUID   uuid.UUID
}

// New returns a random identifier with the given prefix.
func New(prefix string) PrefixedUUID {
	return PrefixedUUID{Prefix: prefix, UUID: uuid.New()}
}

// FromString parses "prefix-uuid".
func FromString(s string) (PrefixedUUID, error) {
	prefix, rest, ok := strings.Cut(s, "-")
	if !ok || prefix == "" {
		return PrefixedUUID{}, fmt.Errorf("invalid prefixed UUID format: %q", s)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return PrefixedUUID{}, fmt.Errorf("invalid UUID: %w", err)
	}
	return PrefixedUUID{Prefix: prefix, UUID: id}, nil
}

func (p PrefixedUUID) String() string {
	return p.Prefix + "-" + p.UUID.String()
}

// IsZero reports whether p is the zero value.
func (p PrefixedUUID) IsZero() bool {
	return p.Prefix == "" && p.UUID == uuid.Nil
}

// MarshalText lets PrefixedUUID appear as a plain string in JSON and YAML.
func (p PrefixedUUID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PrefixedUUID) UnmarshalText(b []byte) error {
	parsed, err := FromString(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
