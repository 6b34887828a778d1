package mqtt

import "fmt"

// Topic prefixes for Box Panel MQTT publications.
//
// All topics live under a single "boxpanel" root so brokers shared with
// other home-automation traffic can scope ACLs to one subtree.
const (
	// TopicPrefix is the base for all Box Panel topics.
	TopicPrefix = "boxpanel"

	// TopicPrefixSystem is the base for dashboard lifecycle topics.
	TopicPrefixSystem = "boxpanel/system"
)

// Topics provides builders for Box Panel MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// ConnectionStatus returns the topic carrying each telemetry tick.
//
// Example: boxpanel/status/connection
func (Topics) ConnectionStatus() string {
	return fmt.Sprintf("%s/status/connection", TopicPrefix)
}

// SystemStatus returns the dashboard online/offline status topic.
//
// Example: boxpanel/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
