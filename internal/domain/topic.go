package domain

import (
	"fmt"
	"regexp"
)

// Channel topics carry ticket ownership metadata in the form
// "ticket_owner:<id>|claimed_by:<id>". External readers depend on this exact
// pattern, so it must not change shape.
var (
	topicOwnerPattern   = regexp.MustCompile(`ticket_owner:([^|\s]+)`)
	topicClaimerPattern = regexp.MustCompile(`claimed_by:([^|\s]+)`)
)

// EncodeTopic renders ownership metadata for a channel topic. The claimed_by
// segment is omitted while the ticket is unclaimed.
func EncodeTopic(ownerID, claimerID string) string {
	if claimerID == "" {
		return fmt.Sprintf("ticket_owner:%s", ownerID)
	}
	return fmt.Sprintf("ticket_owner:%s|claimed_by:%s", ownerID, claimerID)
}

// ParseTopic extracts the owner and current claimer from a channel topic.
// Either value is empty when its segment is absent.
func ParseTopic(topic string) (ownerID, claimerID string) {
	if m := topicOwnerPattern.FindStringSubmatch(topic); m != nil {
		ownerID = m[1]
	}
	if m := topicClaimerPattern.FindStringSubmatch(topic); m != nil {
		claimerID = m[1]
	}
	return ownerID, claimerID
}
