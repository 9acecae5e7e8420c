package database

import (
	"maps"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-errors/errors"
	"github.com/xompass/vsaas-relations/lbq"
)

const (
	FILTER_FIELD_EMPTY                    = "FILTER_FIELD_EMPTY"
	FILTER_WHERE_EMPTY                    = "FILTER_WHERE_EMPTY"
	FILTER_CANNOT_MIX_INCLUSION_EXCLUSION = "FILTER_CANNOT_MIX_INCLUSION_EXCLUSION"
	FILTER_WHERE_CANNOT_BE_NIL            = "FILTER_WHERE_CANNOT_BE_NIL"
	FILTER_FIELD_CONFLICT                 = "FILTER_FIELD_CONFLICT"
)

// FilterBuilder composes an lbq.Filter. The first error sticks and is
// returned by Build.
type FilterBuilder struct {
	conditions []lbq.Where
	fields     lbq.Fields
	order      []lbq.Order
	limit      uint
	skip       uint
	includes   []lbq.Include
	err        error
}

func NewFilter() *FilterBuilder {
	return &FilterBuilder{fields: lbq.Fields{}}
}

// NewFilterFromJSON parses a loopback filter, e.g.
// {"where": {"published": true}, "include": [{"relation": "author"}]}.
func NewFilterFromJSON(filter string) *FilterBuilder {
	parsed, err := lbq.ParseFilter(filter)
	if err != nil {
		return NewFilter().fail(err)
	}
	return NewFilter().FromLBFilter(parsed)
}

func (f *FilterBuilder) fail(err error) *FilterBuilder {
	if f.err == nil {
		f.err = err
	}
	return f
}

// FromLBFilter replaces the conditions of f with the ones in filter and adds
// its projection, order and includes.
func (f *FilterBuilder) FromLBFilter(filter *lbq.Filter) *FilterBuilder {
	if filter == nil {
		return f
	}

	if len(filter.Where) > 0 {
		f.conditions = []lbq.Where{filter.Where}
	}
	f.Fields(filter.Fields)
	if filter.Limit > 0 {
		f.limit = filter.Limit
	}
	if filter.Skip > 0 {
		f.skip = filter.Skip
	}
	f.order = append(f.order, filter.Order...)
	f.includes = append(f.includes, filter.Include...)
	return f
}

func (f *FilterBuilder) Fields(fields map[string]bool) *FilterBuilder {
	maps.Copy(f.fields, fields)
	if !isValidProjection(f.fields) {
		f.fail(errors.New(FILTER_CANNOT_MIX_INCLUSION_EXCLUSION))
	}
	return f
}

// requireField keeps field in an inclusive projection so callers can rely on
// it being decoded.
func (f *FilterBuilder) requireField(field string) *FilterBuilder {
	if slices.Contains(slices.Collect(maps.Values(f.fields)), true) {
		f.fields[field] = true
	}
	return f
}

func (f *FilterBuilder) Limit(limit uint) *FilterBuilder {
	f.limit = limit
	return f
}

func (f *FilterBuilder) Skip(skip uint) *FilterBuilder {
	f.skip = skip
	return f
}

func (f *FilterBuilder) OrderByAsc(field string) *FilterBuilder {
	return f.orderBy(field, "ASC")
}

func (f *FilterBuilder) OrderByDesc(field string) *FilterBuilder {
	return f.orderBy(field, "DESC")
}

func (f *FilterBuilder) orderBy(field string, direction string) *FilterBuilder {
	if err := validateField(field); err != nil {
		return f.fail(err)
	}
	f.order = append(f.order, lbq.Order{Field: field, Direction: direction})
	return f
}

// Include asks the repository to resolve the named relation on the results.
// scope, when not nil, narrows the related query.
func (f *FilterBuilder) Include(relation string, scope *lbq.Filter) *FilterBuilder {
	if err := validateField(relation); err != nil {
		return f.fail(err)
	}
	f.includes = append(f.includes, lbq.Include{Relation: relation, Scope: scope})
	return f
}

// WithWhere ANDs the conditions of where to the filter.
func (f *FilterBuilder) WithWhere(where *WhereBuilder) *FilterBuilder {
	condition, err := where.Build()
	switch {
	case err != nil:
		return f.fail(err)
	case len(condition) == 0:
		return f.fail(errors.New(FILTER_WHERE_EMPTY))
	}

	f.conditions = append(f.conditions, condition)
	return f
}

func (f *FilterBuilder) Build() (*lbq.Filter, error) {
	if f.err != nil {
		return nil, f.err
	}

	return &lbq.Filter{
		Where:   joinWhere("and", f.conditions),
		Fields:  f.fields,
		Order:   f.order,
		Limit:   f.limit,
		Skip:    f.skip,
		Include: f.includes,
	}, nil
}

func (f *FilterBuilder) Clone() *FilterBuilder {
	clone := *f
	clone.conditions = slices.Clone(f.conditions)
	clone.fields = maps.Clone(f.fields)
	clone.order = slices.Clone(f.order)
	clone.includes = slices.Clone(f.includes)
	if clone.fields == nil {
		clone.fields = lbq.Fields{}
	}
	return &clone
}

func (f *FilterBuilder) ToJSON() (string, error) {
	filter, err := f.Build()
	if err != nil {
		return "", err
	}

	data, err := sonic.MarshalString(filter)
	if err != nil {
		return "", errors.Wrap(err, 0)
	}
	return data, nil
}

// MergeWith returns a new filter holding the conditions of f AND other.
// Projections are united and must agree on shared fields; limit, skip and
// order of other win when set; includes are concatenated.
func (f *FilterBuilder) MergeWith(other *FilterBuilder) *FilterBuilder {
	switch {
	case f == nil && other == nil:
		return NewFilter()
	case f == nil:
		return other.Clone()
	case other == nil:
		return f.Clone()
	}

	merged := f.Clone()
	if other.err != nil {
		return merged.fail(other.err)
	}

	if len(other.conditions) > 0 {
		if len(merged.conditions) == 0 {
			merged.conditions = slices.Clone(other.conditions)
		} else {
			merged.conditions = []lbq.Where{{
				"and": lbq.AndOrCondition{joinWhere("and", merged.conditions), joinWhere("and", other.conditions)},
			}}
		}
	}

	for field, included := range other.fields {
		if current, exists := merged.fields[field]; exists && current != included {
			return merged.fail(errors.Errorf("%s: %s is both included and excluded", FILTER_FIELD_CONFLICT, field))
		}
	}
	merged.Fields(other.fields)

	if other.limit > 0 {
		merged.limit = other.limit
	}
	if other.skip > 0 {
		merged.skip = other.skip
	}
	if len(other.order) > 0 {
		merged.order = slices.Clone(other.order)
	}
	merged.includes = append(merged.includes, other.includes...)

	return merged
}

// joinWhere combines conditions under operator, unwrapping a single one.
func joinWhere(operator string, conditions []lbq.Where) lbq.Where {
	switch len(conditions) {
	case 0:
		return nil
	case 1:
		return conditions[0]
	default:
		return lbq.Where{operator: lbq.AndOrCondition(conditions)}
	}
}

// WhereBuilder composes the where part of a filter. Its conditions are ANDed.
type WhereBuilder struct {
	conditions []lbq.Where
	err        error
}

func NewWhere() *WhereBuilder {
	return &WhereBuilder{}
}

// Eq adds a plain equality, {"field": value}. A nil value matches null.
func (w *WhereBuilder) Eq(field string, value any) *WhereBuilder {
	if err := validateField(field); err != nil {
		return w.fail(err)
	}
	w.conditions = append(w.conditions, lbq.Where{field: value})
	return w
}

func (w *WhereBuilder) Neq(field string, value any) *WhereBuilder {
	return w.compare(field, "neq", value)
}

// In matches documents whose field equals one of values.
func (w *WhereBuilder) In(field string, values any) *WhereBuilder {
	return w.compare(field, "inq", values)
}

func (w *WhereBuilder) Nin(field string, values any) *WhereBuilder {
	return w.compare(field, "nin", values)
}

func (w *WhereBuilder) Gt(field string, value any) *WhereBuilder {
	return w.compare(field, "gt", value)
}

func (w *WhereBuilder) Gte(field string, value any) *WhereBuilder {
	return w.compare(field, "gte", value)
}

func (w *WhereBuilder) Lt(field string, value any) *WhereBuilder {
	return w.compare(field, "lt", value)
}

func (w *WhereBuilder) Lte(field string, value any) *WhereBuilder {
	return w.compare(field, "lte", value)
}

// Or adds one condition matching any of builders.
func (w *WhereBuilder) Or(builders ...*WhereBuilder) *WhereBuilder {
	var alternatives []lbq.Where
	for _, builder := range builders {
		condition, err := builder.Build()
		if err != nil {
			return w.fail(err)
		}
		if len(condition) > 0 {
			alternatives = append(alternatives, condition)
		}
	}

	if len(alternatives) > 0 {
		w.conditions = append(w.conditions, lbq.Where{"or": lbq.AndOrCondition(alternatives)})
	}
	return w
}

func (w *WhereBuilder) compare(field string, operator string, value any) *WhereBuilder {
	if err := validateField(field); err != nil {
		return w.fail(err)
	}
	w.conditions = append(w.conditions, lbq.Where{field: lbq.Where{operator: value}})
	return w
}

func (w *WhereBuilder) fail(err error) *WhereBuilder {
	if w.err == nil {
		w.err = err
	}
	return w
}

func (w *WhereBuilder) Build() (lbq.Where, error) {
	if w == nil {
		return nil, errors.New(FILTER_WHERE_CANNOT_BE_NIL)
	}
	if w.err != nil {
		return nil, w.err
	}

	if where := joinWhere("and", w.conditions); where != nil {
		return where, nil
	}
	return lbq.Where{}, nil
}

// isValidProjection rejects projections mixing included and excluded fields.
// _id may be excluded from an inclusive projection.
func isValidProjection(fields map[string]bool) bool {
	var included, excluded bool
	for field, value := range fields {
		switch {
		case field == "_id" || field == ID:
		case value:
			included = true
		default:
			excluded = true
		}
	}
	return !included || !excluded
}

func validateField(field string) error {
	if strings.TrimSpace(field) == "" {
		return errors.New(FILTER_FIELD_EMPTY)
	}
	return nil
}
