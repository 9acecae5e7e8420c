package lbq

import (
	"strings"

	"github.com/go-errors/errors"
	"github.com/valyala/fastjson"
)

var parsers fastjson.ParserPool

// ParseFilter parses a complete filter object.
func ParseFilter(s string) (*Filter, error) {
	return parse(s, "filter", decodeFilter)
}

// ParseWhere parses a where object such as {"authorId": {"inq": [1, 2]}}.
func ParseWhere(s string) (Where, error) {
	return parse(s, "where", decodeWhere)
}

// ParseInclude accepts a relation name, a comma separated list of names, an
// {"relation": ..., "scope": ...} object or an array of those.
func ParseInclude(s string) ([]Include, error) {
	return parse(s, "include", decodeIncludes)
}

func parse[T any](s string, what string, decode func(*fastjson.Value) (T, error)) (T, error) {
	parser := parsers.Get()
	defer parsers.Put(parser)

	value, err := parser.Parse(s)
	if err != nil {
		var zero T
		return zero, errors.Errorf("cannot parse %s: %v", what, err)
	}

	return decode(value)
}

func decodeFilter(value *fastjson.Value) (*Filter, error) {
	obj, err := value.Object()
	if err != nil {
		return nil, errors.New("filter must be an object")
	}

	filter := &Filter{}
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if err != nil {
			return
		}

		switch string(key) {
		case "where":
			filter.Where, err = decodeWhere(v)
		case "fields":
			filter.Fields, err = decodeFields(v)
		case "order":
			filter.Order, err = decodeOrder(v)
		case "limit":
			filter.Limit, err = decodeCount(v, "limit")
		case "skip", "offset":
			filter.Skip, err = decodeCount(v, "skip")
		case "include":
			filter.Include, err = decodeIncludes(v)
		}
	})
	if err != nil {
		return nil, err
	}

	return filter, nil
}

func decodeWhere(value *fastjson.Value) (Where, error) {
	obj, err := value.Object()
	if err != nil {
		return nil, errors.New("where must be an object")
	}

	where := Where{}
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if err != nil {
			return
		}

		name := string(key)
		switch {
		case strings.HasPrefix(name, "$"):
			err = errors.Errorf("operator %s is not allowed", name)
		case name == "and" || name == "or":
			where[name], err = decodeAndOr(name, v)
		case v.Type() == fastjson.TypeObject:
			where[name], err = decodeComparison(name, v)
		default:
			where[name] = Where{"eq": decodeValue(v)}
		}
	})
	if err != nil {
		return nil, err
	}

	return where, nil
}

func decodeAndOr(name string, value *fastjson.Value) (AndOrCondition, error) {
	items, err := value.Array()
	if err != nil {
		return nil, errors.Errorf("%s must be an array", name)
	}

	conditions := make(AndOrCondition, 0, len(items))
	for _, item := range items {
		where, err := decodeWhere(item)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, where)
	}

	return conditions, nil
}

// decodeComparison reads a field's operator object, e.g. {"gte": 1, "lt": 5}.
func decodeComparison(field string, value *fastjson.Value) (Where, error) {
	comparison := Where{}

	var err error
	value.GetObject().Visit(func(key []byte, v *fastjson.Value) {
		if err != nil {
			return
		}

		op := string(key)
		switch {
		case !IsComparison(op):
			err = errors.Errorf("unknown operator %s on field %s", op, field)
		case (op == "inq" || op == "nin") && v.Type() != fastjson.TypeArray:
			err = errors.Errorf("%s on field %s must be an array", op, field)
		case op == "exists" && v.Type() != fastjson.TypeTrue && v.Type() != fastjson.TypeFalse:
			err = errors.Errorf("exists on field %s must be a boolean", field)
		default:
			comparison[op] = decodeValue(v)
		}
	})
	if err != nil {
		return nil, err
	}

	return comparison, nil
}

// decodeValue converts a JSON value to plain Go values. Numbers are float64.
func decodeValue(value *fastjson.Value) any {
	switch value.Type() {
	case fastjson.TypeString:
		return string(value.GetStringBytes())
	case fastjson.TypeNumber:
		return value.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeArray:
		items := value.GetArray()
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = decodeValue(item)
		}
		return list
	case fastjson.TypeObject:
		object := map[string]any{}
		value.GetObject().Visit(func(key []byte, v *fastjson.Value) {
			object[string(key)] = decodeValue(v)
		})
		return object
	default:
		return nil
	}
}

func decodeFields(value *fastjson.Value) (Fields, error) {
	fields := Fields{}

	switch value.Type() { //nolint:exhaustive
	case fastjson.TypeArray:
		for _, item := range value.GetArray() {
			name, err := item.StringBytes()
			if err != nil {
				return nil, errors.New("fields must be names")
			}
			fields[string(name)] = true
		}
	case fastjson.TypeObject:
		var err error
		value.GetObject().Visit(func(key []byte, v *fastjson.Value) {
			included, boolErr := v.Bool()
			if boolErr != nil && err == nil {
				err = errors.Errorf("field %s must be true or false", key)
			}
			fields[string(key)] = included
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("fields must be an array or an object")
	}

	return fields, nil
}

func decodeOrder(value *fastjson.Value) ([]Order, error) {
	var items []*fastjson.Value
	switch value.Type() { //nolint:exhaustive
	case fastjson.TypeString:
		items = []*fastjson.Value{value}
	case fastjson.TypeArray:
		items = value.GetArray()
	default:
		return nil, errors.New("order must be a string or an array")
	}

	order := make([]Order, 0, len(items))
	for _, item := range items {
		clause, err := item.StringBytes()
		if err != nil {
			return nil, errors.New("order clauses must be strings")
		}

		parsed, err := parseOrderClause(string(clause))
		if err != nil {
			return nil, err
		}
		order = append(order, parsed)
	}

	return order, nil
}

// parseOrderClause reads "field" or "field ASC|DESC".
func parseOrderClause(clause string) (Order, error) {
	parts := strings.Fields(clause)

	switch len(parts) {
	case 1:
		return Order{Field: parts[0], Direction: "ASC"}, nil
	case 2:
		direction := strings.ToUpper(parts[1])
		if direction == "ASC" || direction == "DESC" {
			return Order{Field: parts[0], Direction: direction}, nil
		}
	}

	return Order{}, errors.Errorf("invalid order clause %q", clause)
}

func decodeCount(value *fastjson.Value, name string) (uint, error) {
	n, err := value.Uint()
	if err != nil {
		return 0, errors.Errorf("%s must be a non negative integer", name)
	}
	return n, nil
}

func decodeIncludes(value *fastjson.Value) ([]Include, error) {
	switch value.Type() { //nolint:exhaustive
	case fastjson.TypeString:
		var includes []Include
		for _, name := range strings.Split(string(value.GetStringBytes()), ",") {
			if name = strings.TrimSpace(name); name != "" {
				includes = append(includes, Include{Relation: name})
			}
		}
		return includes, nil
	case fastjson.TypeObject:
		include, err := decodeInclude(value.GetObject())
		if err != nil {
			return nil, err
		}
		return []Include{include}, nil
	case fastjson.TypeArray:
		var includes []Include
		for _, item := range value.GetArray() {
			nested, err := decodeIncludes(item)
			if err != nil {
				return nil, err
			}
			includes = append(includes, nested...)
		}
		return includes, nil
	default:
		return nil, errors.New("include must be a name, an object or an array")
	}
}

func decodeInclude(obj *fastjson.Object) (Include, error) {
	name := obj.Get("relation")
	if name == nil || name.Type() != fastjson.TypeString || len(name.GetStringBytes()) == 0 {
		return Include{}, errors.New("include needs a relation name")
	}

	include := Include{Relation: string(name.GetStringBytes())}
	var err error
	if scope := obj.Get("scope"); scope != nil {
		include.Scope, err = decodeFilter(scope)
		if err != nil {
			return Include{}, errors.Errorf("scope of %s: %v", include.Relation, err)
		}
	}

	return include, nil
}
