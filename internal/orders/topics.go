package orders

const TopicOrderLifecycle = "order.lifecycle"

// Partition key = session id, so all events for one checkout keep order.
func PartitionKey(sessionID string) []byte { return []byte(sessionID) }
