// Package lbq parses loopback style filters, e.g.
//
//	{"where": {"authorId": {"inq": [1, 2]}}, "include": {"relation": "author", "scope": {"fields": ["name"]}}}
package lbq

// Where maps a field to a value (equality) or to an operator object, and
// "and"/"or" to an AndOrCondition.
type Where map[string]any

type AndOrCondition []Where

// Fields is a projection: all true (inclusive) or all false (exclusive).
type Fields map[string]bool

type Order struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // ASC or DESC
}

// Include names a relation to resolve on the results. Scope narrows the
// related query.
type Include struct {
	Relation string  `json:"relation"`
	Scope    *Filter `json:"scope,omitempty"`
}

type Filter struct {
	Where   Where     `json:"where,omitempty"`
	Fields  Fields    `json:"fields,omitempty"`
	Order   []Order   `json:"order,omitempty"`
	Limit   uint      `json:"limit,omitempty"`
	Skip    uint      `json:"skip,omitempty"`
	Include []Include `json:"include,omitempty"`
}

// comparison operators accepted inside a field's operator object
var comparisons = map[string]bool{
	"eq":     true,
	"neq":    true,
	"gt":     true,
	"gte":    true,
	"lt":     true,
	"lte":    true,
	"inq":    true,
	"nin":    true,
	"exists": true,
}

// IsComparison reports whether op can appear in a field's operator object.
func IsComparison(op string) bool {
	return comparisons[op]
}
