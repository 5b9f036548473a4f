package feed

import (
	"fmt"
	"strings"
)

// All disables the category or attribute stage of a FilterSpec.
const All = "all"

// FilterSpec narrows a collection. Empty Category and Attribute behave like
// All; RequiredTags uses AND semantics.
type FilterSpec struct {
	Category      string   `json:"category"`
	RequiredTags  []string `json:"required_tags,omitempty"`
	Attribute     string   `json:"attribute"`
	SearchKeyword string   `json:"search_keyword,omitempty"`
}

func DefaultFilter() FilterSpec {
	return FilterSpec{Category: All, Attribute: All}
}

// FilterPatch is a partial FilterSpec; nil fields are left unchanged.
type FilterPatch struct {
	Category      *string
	RequiredTags  *[]string
	Attribute     *string
	SearchKeyword *string
}

func (s FilterSpec) Merge(p FilterPatch) FilterSpec {
	out := s
	out.RequiredTags = append([]string(nil), s.RequiredTags...)
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.RequiredTags != nil {
		out.RequiredTags = append([]string(nil), (*p.RequiredTags)...)
	}
	if p.Attribute != nil {
		out.Attribute = *p.Attribute
	}
	if p.SearchKeyword != nil {
		out.SearchKeyword = *p.SearchKeyword
	}
	return out
}

func (s FilterSpec) IsZero() bool {
	return isAll(s.Category) && isAll(s.Attribute) && len(s.RequiredTags) == 0 && strings.TrimSpace(s.SearchKeyword) == ""
}

func isAll(v string) bool {
	return v == "" || v == All
}

// SortKey selects the comparator used by Apply.
type SortKey int

const (
	DateDesc SortKey = iota
	DateAsc
	ScoreDesc
	ScoreAsc
)

var sortKeyNames = map[SortKey]string{
	DateDesc:  "date_desc",
	DateAsc:   "date_asc",
	ScoreDesc: "score_desc",
	ScoreAsc:  "score_asc",
}

// SortKeys lists every key in display order.
var SortKeys = []SortKey{DateDesc, DateAsc, ScoreDesc, ScoreAsc}

func (k SortKey) String() string {
	if name, ok := sortKeyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("SortKey(%d)", int(k))
}

func ParseSortKey(raw string) (SortKey, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return DateDesc, nil
	}
	for k, name := range sortKeyNames {
		if name == raw {
			return k, nil
		}
	}
	return DateDesc, fmt.Errorf("unknown sort key: %q", raw)
}

// Next cycles through SortKeys.
func (k SortKey) Next() SortKey {
	for i, key := range SortKeys {
		if key == k {
			return SortKeys[(i+1)%len(SortKeys)]
		}
	}
	return DateDesc
}

func (k SortKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SortKey) UnmarshalText(text []byte) error {
	parsed, err := ParseSortKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
