package orders

const TopicMarketplaceEvents = "marketplace.events"

// Partition key = buyer, so every event for one buyer keeps its order on the topic.
func PartitionKey(buyer string) []byte { return []byte(buyer) }
