package fetch

import "strings"

// extractStationID implements the station-id extraction policy shared by
// the flood and hydrology fetchers: the final path segment of the measure
// URL is split on hyphen and the leading component is taken as the id.
//
// e.g. ".../stations/1029-level-downstream-stage" -> "1029"
func extractStationID(measureURL string) string {
	trimmed := strings.TrimRight(measureURL, "/")
	lastSlash := strings.LastIndex(trimmed, "/")
	segment := trimmed
	if lastSlash >= 0 {
		segment = trimmed[lastSlash+1:]
	}
	if i := strings.Index(segment, "-"); i >= 0 {
		return segment[:i]
	}
	return segment
}
