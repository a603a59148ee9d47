package discovery

import (
	"strings"
)

const (
	linkEntrySeparatorConstant     = ","
	linkParameterSeparatorConstant = ";"
	linkRelationParameterConstant  = "rel="
	linkURLOpeningConstant         = "<"
	linkURLClosingConstant         = ">"
	linkQuoteCharactersConstant    = `"'`
	nextRelationConstant           = "next"
)

// ParseLinkHeader maps relation names to URLs from a header of the form
// `<url>; rel="next", <url>; rel="last"`. Malformed entries are ignored.
// A rel parameter listing several space separated relations registers the URL
// under each of them.
func ParseLinkHeader(header string) map[string]string {
	relations := make(map[string]string)
	for _, entry := range strings.Split(header, linkEntrySeparatorConstant) {
		segments := strings.Split(entry, linkParameterSeparatorConstant)
		if len(segments) < 2 {
			continue
		}

		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, linkURLOpeningConstant) || !strings.HasSuffix(target, linkURLClosingConstant) {
			continue
		}
		target = strings.TrimSuffix(strings.TrimPrefix(target, linkURLOpeningConstant), linkURLClosingConstant)
		if len(target) == 0 {
			continue
		}

		for _, parameter := range segments[1:] {
			trimmedParameter := strings.TrimSpace(parameter)
			if !strings.HasPrefix(trimmedParameter, linkRelationParameterConstant) {
				continue
			}
			relationValue := strings.Trim(strings.TrimPrefix(trimmedParameter, linkRelationParameterConstant), linkQuoteCharactersConstant)
			for _, relation := range strings.Fields(relationValue) {
				if _, alreadyPresent := relations[relation]; !alreadyPresent {
					relations[relation] = target
				}
			}
		}
	}
	return relations
}

// NextPageURL returns the "next" relation of a Link header.
func NextPageURL(header string) (string, bool) {
	nextURL, found := ParseLinkHeader(header)[nextRelationConstant]
	return nextURL, found
}
