package feed

import "sort"

// Facets lists the distinct filter values present in a collection.
type Facets struct {
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
	Attributes []string `json:"attributes"`
}

func CollectFacets(items []Item) Facets {
	categories := make(map[string]struct{})
	tags := make(map[string]struct{})
	attributes := make(map[string]struct{})
	for _, item := range items {
		if item.Category != "" {
			categories[item.Category] = struct{}{}
		}
		if item.Attribute != "" {
			attributes[item.Attribute] = struct{}{}
		}
		for _, tag := range item.Tags {
			if tag != "" {
				tags[tag] = struct{}{}
			}
		}
	}
	return Facets{
		Categories: sortedKeys(categories),
		Tags:       sortedKeys(tags),
		Attributes: sortedKeys(attributes),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
