// Package objectparser extracts structured shelf/slot/port identifiers from
// a colon-delimited affected-object string.
package objectparser

import "strings"

var prefixes = []string{"shelf", "slot", "port"}

// Parse splits affectedObject on ":" and records each segment under the
// shelf/slot/port key it is prefixed with. Last occurrence wins; absent
// segments yield an absent key; empty input yields an empty map.
func Parse(affectedObject string) map[string]string {
	result := make(map[string]string)
	if affectedObject == "" {
		return result
	}

	for _, segment := range strings.Split(affectedObject, ":") {
		for _, prefix := range prefixes {
			if strings.HasPrefix(segment, prefix) {
				result[prefix] = segment
				break
			}
		}
	}

	return result
}
