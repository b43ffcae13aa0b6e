package kafka

import "fmt"

// TopicPrefix is the standard prefix for all SUMATIN Kafka topics.
const TopicPrefix = "sumatin"

// Topic builds a topic name of the form sumatin.<domain>.<action>.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
