package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefixSystem is the base for whereabouts' own status topics.
const TopicPrefixSystem = "whereabouts"

// transitionSuffix is the last level of an OwnTracks transition topic.
const transitionSuffix = "event"

// Topics provides builders for the topics used by the clock.
//
//	topics := mqtt.Topics{}
//	filter := topics.TransitionEvents("owntracks")
//	// Returns: "owntracks/+/+/event"
type Topics struct{}

// TransitionEvents returns the subscription filter for OwnTracks region
// transition events under namespace.
//
// Pattern: owntracks/+/+/event
func (Topics) TransitionEvents(namespace string) string {
	return fmt.Sprintf("%s/+/+/%s", namespace, transitionSuffix)
}

// ServoCommand returns the topic a servo channel listens on.
//
// Example: whereabouts/servo/3/set
func (Topics) ServoCommand(prefix string, channel int) string {
	return fmt.Sprintf("%s/%d/set", prefix, channel)
}

// Status returns the retained online/offline topic for a client.
//
// Example: whereabouts/whereabouts-hall/status
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixSystem, clientID)
}

// EventTopic is a parsed OwnTracks transition topic.
type EventTopic struct {
	Namespace string
	User      string
	Device    string
	Suffix    string
}

// Identity returns "<user>/<device>", the key people are matched against.
func (t EventTopic) Identity() string {
	return t.User + "/" + t.Device
}

// ParseEventTopic splits topic into its four levels.
//
// Returns:
//   - EventTopic: The parsed levels
//   - bool: false unless topic has exactly four levels
func ParseEventTopic(topic string) (EventTopic, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return EventTopic{}, false
	}
	return EventTopic{
		Namespace: parts[0],
		User:      parts[1],
		Device:    parts[2],
		Suffix:    parts[3],
	}, true
}
