package extract

import (
	"fmt"
	"regexp"
	"strconv"
)

var markerRe = regexp.MustCompile(`--- Page (\d+) ---`)

// Marker is a page marker located in marker-tagged text.
type Marker struct {
	Page  int
	Start int
	End   int
}

// PageMarker returns the marker that precedes the text of 1-based page n.
func PageMarker(n int) string {
	return fmt.Sprintf("--- Page %d ---", n)
}

// FindMarkers returns every page marker in text, in order of appearance.
func FindMarkers(text string) []Marker {
	locs := markerRe.FindAllStringSubmatchIndex(text, -1)
	markers := make([]Marker, 0, len(locs))
	for _, loc := range locs {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		markers = append(markers, Marker{Page: n, Start: loc[0], End: loc[1]})
	}
	return markers
}
