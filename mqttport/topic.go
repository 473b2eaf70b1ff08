package mqttport

import "path"

// Worker presence published on StatusTopic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// RequestTopic is where the controller publishes requests for workerID.
func RequestTopic(prefix, workerID string) string {
	return path.Join(prefix, workerID, "request")
}

// ResponseTopic is where workerID publishes its replies.
func ResponseTopic(prefix, workerID string) string {
	return path.Join(prefix, workerID, "response")
}

// StatusTopic carries the retained presence of workerID.
func StatusTopic(prefix, workerID string) string {
	return path.Join(prefix, workerID, "status")
}
