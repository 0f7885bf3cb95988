package mqtt

import "fmt"

// Topic prefixes for the threat intelligence internal bus.
const (
	// TopicPrefix is the root of every topic this service uses.
	TopicPrefix = "threatintel"

	// TopicPrefixSystem is the base for process-level topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for the service's MQTT topics.
//
//	topic := mqtt.Topics{}.DBPoolStats()
//	// Returns: "threatintel/system/dbpool"
type Topics struct{}

// SystemStatus returns the retained online/offline topic (also the LWT).
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// SystemShutdown returns the topic announcing a graceful shutdown.
func (Topics) SystemShutdown() string {
	return TopicPrefixSystem + "/shutdown"
}

// DBPoolStats returns the retained topic carrying pool statistics snapshots.
func (Topics) DBPoolStats() string {
	return TopicPrefixSystem + "/dbpool"
}

// DBPoolRequest returns the topic on which other services ask for an
// immediate statistics snapshot.
func (Topics) DBPoolRequest() string {
	return TopicPrefixSystem + "/dbpool/request"
}

// Instance returns a per-instance subtopic of a system topic, for
// deployments running several pools against one broker.
//
// Example: threatintel/system/dbpool/intel-01
func (Topics) Instance(topic, instanceID string) string {
	return fmt.Sprintf("%s/%s", topic, instanceID)
}

// AllSystem returns a wildcard matching every system topic.
func (Topics) AllSystem() string {
	return TopicPrefixSystem + "/#"
}
