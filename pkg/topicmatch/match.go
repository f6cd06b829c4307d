package topicmatch

import "strings"

// Match reports whether topic satisfies pattern.
//
// The walk is over the character stream of both strings rather than
// pre-split segments: equal strings match; a pattern whose remaining text
// starts with '#' matches immediately; '+' consumes the current topic
// segment one character at a time and closes out at the next '/' or at
// the end of the topic. Every step shrinks the topic or the pattern, so
// the walk always terminates.
func Match(topic, pattern string) bool {
	for {
		if topic == pattern {
			return true
		}
		if strings.HasPrefix(pattern, "#") {
			return true
		}
		if pattern == "" {
			return false
		}
		if pattern[0] == '+' {
			if topic == "" || topic[0] == '/' {
				// The wildcard segment is closed out: step the topic
				// over the separator and the pattern over "+/".
				if topic != "" {
					topic = topic[1:]
				}
				pattern = pattern[min(2, len(pattern)):]
				continue
			}
			// Still inside the segment covered by '+'.
			topic = topic[1:]
			continue
		}
		if topic == "" || pattern[0] != topic[0] {
			return false
		}
		topic = topic[1:]
		pattern = pattern[1:]
	}
}

// MatchAny reports whether topic satisfies at least one of the patterns.
func MatchAny(topic string, patterns []string) bool {
	for _, pattern := range patterns {
		if Match(topic, pattern) {
			return true
		}
	}
	return false
}
