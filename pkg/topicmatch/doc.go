// Package topicmatch implements wildcard matching of hierarchical topics.
//
// Topics are strings of '/'-delimited segments. Patterns look like topics
// but may contain two wildcards:
//   - "+" matches exactly one segment
//   - "#" matches the entire remaining suffix of the topic
//
// Examples:
//
//	topicmatch.Match("room/42", "room/+")      // true
//	topicmatch.Match("room/42/x", "room/+")    // false
//	topicmatch.Match("room/42/x", "room/#")    // true
//	topicmatch.MatchAny("a/b", []string{"x/y", "a/+"}) // true
//
// One deliberate divergence from the usual hierarchical-topic convention:
// "#" is honored wherever it appears in the pattern, not only as the final
// segment, and everything after it is ignored. "a/#/b" therefore matches
// "a/anything/at/all". Callers that want the stricter convention must
// validate their patterns before subscribing.
//
// Matching is a pure predicate over the two strings; the package has no
// state and no I/O.
package topicmatch
