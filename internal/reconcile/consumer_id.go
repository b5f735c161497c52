package reconcile

import (
	"fmt"
	"os"

	"github.com/oklog/ulid/v2"
)

// NewConsumerID names this process within the consumer group. The ULID
// suffix keeps restarted processes from inheriting a dead consumer's name.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "reconciler"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), ulid.Make().String())
}
