package eventbus

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Metadata is an opaque key/value bag carried by an envelope.
type Metadata map[string]any

// Get returns the value for key, or nil.
func (m Metadata) Get(key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

// GetString returns the value for key when it holds a string.
func (m Metadata) GetString(key string) string {
	s, _ := m.Get(key).(string)
	return s
}

// Set sets key to value and returns the metadata for chaining.
// Setting on a nil Metadata allocates a new one.
func (m Metadata) Set(key string, value any) Metadata {
	if m == nil {
		m = Metadata{}
	}
	m[key] = value
	return m
}

// Copy returns a shallow copy.
func (m Metadata) Copy() Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

func (m Metadata) String() string {
	if m == nil {
		return ""
	}
	keys := slices.Sorted(maps.Keys(m))
	vals := make([]string, 0, len(keys))
	for _, key := range keys {
		vals = append(vals, fmt.Sprintf("%s=%v", key, m[key]))
	}
	return fmt.Sprintf("Metadata{%s}", strings.Join(vals, ", "))
}
