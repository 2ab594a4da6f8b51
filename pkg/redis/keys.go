package redis

import (
	"fmt"
	"strings"
)

// Key naming conventions for Redis keys.
// All keys follow the pattern: {namespace}:{entity}:{id}:{field}
//
// Example: "dnsp:user:123:sessions" for user 123's session index.

const (
	// KeyNamespace prefixes every key.
	KeyNamespace = "dnsp"
)

// KeyBuilder helps build Redis keys following naming conventions.
type KeyBuilder struct {
	parts []string
}

// NewKeyBuilder creates a new key builder.
func NewKeyBuilder() *KeyBuilder {
	return &KeyBuilder{parts: []string{KeyNamespace}}
}

// Entity adds an entity type to the key.
func (kb *KeyBuilder) Entity(entity string) *KeyBuilder {
	kb.parts = append(kb.parts, entity)
	return kb
}

// ID adds an ID to the key.
func (kb *KeyBuilder) ID(id string) *KeyBuilder {
	kb.parts = append(kb.parts, id)
	return kb
}

// Field adds a field name to the key.
func (kb *KeyBuilder) Field(field string) *KeyBuilder {
	kb.parts = append(kb.parts, field)
	return kb
}

// Build constructs the final key string.
func (kb *KeyBuilder) Build() string {
	return strings.Join(kb.parts, ":")
}

// SessionKey returns the key of a session record.
// Example: dnsp:session:abc
func SessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", KeyNamespace, sessionID)
}

// UserSessionsKey returns the set of a user's open session IDs.
// Example: dnsp:user:123:sessions
func UserSessionsKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:sessions", KeyNamespace, userID)
}

// DeviceKey returns the key of a device-local value.
// Example: dnsp:device:dev-1:history:123
func DeviceKey(deviceID, name string) string {
	return fmt.Sprintf("%s:device:%s:%s", KeyNamespace, deviceID, name)
}

// RateLimitKey returns a key for rate limiting.
// Example: dnsp:ratelimit:signin:a@b.c:minute
func RateLimitKey(rtype, identifier, window string) string {
	return fmt.Sprintf("%s:ratelimit:%s:%s:%s", KeyNamespace, rtype, identifier, window)
}

// PubSubChannel returns a channel name for pub/sub.
// Example: dnsp:pubsub:songs
func PubSubChannel(topic string) string {
	return fmt.Sprintf("%s:pubsub:%s", KeyNamespace, topic)
}

// PubSubPattern matches every channel built by PubSubChannel.
func PubSubPattern() string {
	return PubSubChannel("*")
}

// TopicFromChannel strips the PubSubChannel prefix. ok is false for foreign channels.
func TopicFromChannel(channel string) (string, bool) {
	prefix := PubSubChannel("")
	if !strings.HasPrefix(channel, prefix) {
		return "", false
	}
	return channel[len(prefix):], true
}
