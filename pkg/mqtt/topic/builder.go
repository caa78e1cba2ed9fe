package topic

import (
	"fmt"
	"strings"
)

// Builder constructs VDA5050 topics of the form
// {root}/{manufacturer}/{serialNumber}/{subtopic}.
type Builder struct {
	// root is the interface prefix, e.g. "uagv/v2".
	root string
}

// NewBuilder returns a Builder rooted at root. Surrounding slashes are dropped.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.Trim(root, "/")}
}

// Root returns the interface prefix.
func (b *Builder) Root() string {
	return b.root
}

// Build returns the topic for one vehicle and subtopic.
func (b *Builder) Build(manufacturer, serialNumber, subtopic string) string {
	return fmt.Sprintf("%s/%s/%s/%s", b.root, manufacturer, serialNumber, subtopic)
}

// BuildWildcard returns a filter matching subtopic for every vehicle of every manufacturer.
// Result: {root}/+/+/{subtopic}
func (b *Builder) BuildWildcard(subtopic string) string {
	return b.Build(Wildcard, Wildcard, subtopic)
}

// Shared returns the wildcard filter wrapped in an MQTT v5 shared subscription,
// so several bridge replicas can split the downlink load.
func (b *Builder) Shared(group, subtopic string) string {
	if group == "" {
		return b.BuildWildcard(subtopic)
	}
	return fmt.Sprintf("%s/%s/%s", SharePrefix, group, b.BuildWildcard(subtopic))
}

// Address is a parsed VDA5050 topic.
type Address struct {
	Manufacturer string
	SerialNumber string
	Subtopic     string
}

// Parse splits topic into its vehicle address. It fails if the topic is not
// under the builder's root or does not have exactly three trailing levels.
func (b *Builder) Parse(topic string) (Address, error) {
	rest, ok := strings.CutPrefix(topic, b.root+"/")
	if !ok {
		return Address{}, fmt.Errorf("topic %q is not under %q", topic, b.root)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return Address{}, fmt.Errorf("topic %q: want {manufacturer}/{serialNumber}/{subtopic} after root", topic)
	}
	for _, p := range parts {
		if p == "" || p == Wildcard || p == MultiWildcard {
			return Address{}, fmt.Errorf("topic %q has an empty or wildcard level", topic)
		}
	}

	return Address{Manufacturer: parts[0], SerialNumber: parts[1], Subtopic: parts[2]}, nil
}
