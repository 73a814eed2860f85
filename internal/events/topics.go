package events

import "fmt"

const (
	// TopicBridges carries bridge list changes (created, closed, state).
	TopicBridges = "bridges"
)

// FrameTopic carries encoded frames of one bridge.
func FrameTopic(bridgeID string) string {
	return fmt.Sprintf("bridge.%s.frame", bridgeID)
}

// StatusTopic carries state changes and page messages of one bridge.
func StatusTopic(bridgeID string) string {
	return fmt.Sprintf("bridge.%s.status", bridgeID)
}
