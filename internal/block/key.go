package block

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidKey = errors.New("invalid block key")

// DefaultNamespace qualifies identifiers written before namespaces were stored.
const DefaultNamespace = "hellblock"

// Key is a namespaced block-type identifier such as "hellblock:lava_rise".
type Key struct {
	Namespace string
	Value     string
}

func NewKey(namespace, value string) Key {
	return Key{Namespace: namespace, Value: value}
}

// ParseKey parses a fully qualified "namespace:value" identifier.
func ParseKey(s string) (Key, error) {
	ns, v, ok := strings.Cut(s, ":")
	if !ok || ns == "" || v == "" {
		return Key{}, fmt.Errorf("block key %q is not namespaced", s)
	}
	return Key{Namespace: ns, Value: v}, nil
}

// QualifyKey parses s, falling back to namespace when s carries none.
func QualifyKey(s, namespace string) (Key, error) {
	if !strings.Contains(s, ":") {
		if s == "" {
			return Key{}, fmt.Errorf("empty block key")
		}
		return Key{Namespace: namespace, Value: s}, nil
	}
	return ParseKey(s)
}

// Validate reports whether k survives a round trip through its
// "namespace:value" form.
func (k Key) Validate() error {
	if k.Namespace == "" || k.Value == "" || strings.Contains(k.Namespace, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
	}
	return nil
}

func (k Key) IsZero() bool { return k == Key{} }

func (k Key) String() string {
	return k.Namespace + ":" + k.Value
}
