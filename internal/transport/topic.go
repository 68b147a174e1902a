package transport

import (
	"fmt"
	"strings"
)

// MaxQoS is the highest delivery guarantee a subscription may request
const MaxQoS = 2

// ValidateTopicFilter validates a subscription topic filter
func ValidateTopicFilter(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}

	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		// Allow empty segments for leading/trailing slashes
		if segment == "" && i != 0 && i != len(segments)-1 {
			return fmt.Errorf("%w: empty segment not allowed in middle of topic", ErrInvalidTopic)
		}

		if strings.Contains(segment, "#") {
			if segment != "#" {
				return fmt.Errorf("%w: # wildcard must occupy entire segment", ErrInvalidTopic)
			}
			if i != len(segments)-1 {
				return fmt.Errorf("%w: # wildcard must be the last segment", ErrInvalidTopic)
			}
		}

		if strings.Contains(segment, "+") && segment != "+" {
			return fmt.Errorf("%w: + wildcard must occupy entire segment", ErrInvalidTopic)
		}
	}

	return nil
}

// ValidateSubjectFilter checks that a topic filter survives the round trip
// to a NATS subject and back. Levels may not contain '.', '*' or '>', since
// those are NATS separators and wildcards.
func ValidateSubjectFilter(topic string) error {
	if err := ValidateTopicFilter(topic); err != nil {
		return err
	}
	if i := strings.IndexAny(topic, ".*>"); i >= 0 {
		return fmt.Errorf("%w: %q is not allowed in a NATS topic", ErrInvalidTopic, topic[i])
	}
	return nil
}

// ValidateQoS checks that qos is a level the protocols understand
func ValidateQoS(qos byte) error {
	if qos > MaxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// MatchTopic reports whether a concrete topic name matches a subscription filter
func MatchTopic(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")

	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
