package registry

import (
	"strings"
)

// Capability is a bitset describing which operation classes a downstream
// server can serve. A single physical server may advertise several
// capabilities (e.g. a multimodal runtime serving both chat and embeddings).
type Capability uint8

// Capability bits, in canonical serialization order.
const (
	CapChat Capability = 1 << iota
	CapEmbeddings
	CapImage
	CapTTS
	CapTranslate
	CapTranscribe
)

// capabilityNames lists the lowercase wire names in canonical order.
// The order is load-bearing: Capability.String and ParseCapabilities
// round-trip through it.
var capabilityNames = []struct {
	bit  Capability
	name string
}{
	{CapChat, "chat"},
	{CapEmbeddings, "embeddings"},
	{CapImage, "image"},
	{CapTTS, "tts"},
	{CapTranslate, "translate"},
	{CapTranscribe, "transcribe"},
}

// ParseCapability parses a single lowercase capability name.
// Returns an InvalidServerKindError for unknown names.
func ParseCapability(name string) (Capability, error) {
	for _, c := range capabilityNames {
		if c.name == name {
			return c.bit, nil
		}
	}
	return 0, &InvalidServerKindError{Kind: name}
}

// ParseCapabilities parses a comma-separated capability list such as
// "chat,embeddings". Whitespace around entries is tolerated. An empty
// string or any unknown entry yields an InvalidServerKindError.
func ParseCapabilities(s string) (Capability, error) {
	if strings.TrimSpace(s) == "" {
		return 0, &InvalidServerKindError{Kind: s}
	}

	var caps Capability
	for part := range strings.SplitSeq(s, ",") {
		bit, err := ParseCapability(strings.TrimSpace(part))
		if err != nil {
			return 0, &InvalidServerKindError{Kind: s}
		}
		caps |= bit
	}
	return caps, nil
}

// Has reports whether all bits of other are set in c.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// Bits returns the individual capability bits set in c, in canonical order.
func (c Capability) Bits() []Capability {
	var bits []Capability
	for _, n := range capabilityNames {
		if c.Has(n.bit) {
			bits = append(bits, n.bit)
		}
	}
	return bits
}

// String serializes the bitset as a comma-joined list of lowercase names
// in canonical order (chat, embeddings, image, tts, translate, transcribe).
func (c Capability) String() string {
	var names []string
	for _, n := range capabilityNames {
		if c.Has(n.bit) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}
