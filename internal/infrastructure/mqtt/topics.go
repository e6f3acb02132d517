package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "trackguard"

// Topics builds trackguard topic names under a prefix.
//
//	topics := mqtt.NewTopics("trackguard")
//	topics.DeviceConfig("hw-42")
//	// Returns: "trackguard/device/hw-42/config"
type Topics struct {
	prefix string
}

// NewTopics creates a topic builder. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Status returns the retained presence topic for a client.
//
// Example: trackguard/status/trackguard-hw-42
func (t Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/status/%s", t.prefix, clientID)
}

// DeviceConfig returns the retained configuration topic for a device.
//
// Example: trackguard/device/hw-42/config
func (t Topics) DeviceConfig(identity string) string {
	return fmt.Sprintf("%s/device/%s/config", t.prefix, sanitize(identity))
}

// DeviceState returns the topic a device publishes state snapshots on.
//
// Example: trackguard/device/hw-42/state
func (t Topics) DeviceState(identity string) string {
	return fmt.Sprintf("%s/device/%s/state", t.prefix, sanitize(identity))
}

// sanitize replaces characters that are topic separators or wildcards.
func sanitize(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
