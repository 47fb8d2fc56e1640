package events

import (
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ConsumerPrefix marks notifier consumers in the key event group.
const ConsumerPrefix = "keydesk-notifier-"

// NewConsumerID returns a distinct notifier name for the consumer group.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	host = strings.ReplaceAll(host, ".", "-")
	return ConsumerPrefix + host + "-" + strings.ToLower(ulid.Make().String())
}
