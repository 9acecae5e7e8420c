package database

import (
	"reflect"
	"time"

	"github.com/go-errors/errors"
	"github.com/simplereach/timeutils"
	"github.com/xompass/vsaas-relations/http_errors"
	"github.com/xompass/vsaas-relations/lbq"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	FILTER_UNKNOWN_FIELD     = "FILTER_UNKNOWN_FIELD"
	FILTER_INVALID_VALUE     = "FILTER_INVALID_VALUE"
	FILTER_INVALID_CONDITION = "FILTER_INVALID_CONDITION"
)

var mongoComparisons = map[string]string{
	"eq":     "$eq",
	"neq":    "$ne",
	"gt":     "$gt",
	"gte":    "$gte",
	"lt":     "$lt",
	"lte":    "$lte",
	"inq":    "$in",
	"nin":    "$nin",
	"exists": "$exists",
}

// mongoQuery is an lbq.Filter translated for one collection.
type mongoQuery struct {
	filter     bson.M
	sort       bson.D
	projection bson.M
	limit      int64
	skip       int64
	include    []lbq.Include
}

// translateFilter resolves every field of filter through schema. Unknown
// fields and values that cannot be converted to the field type are errors;
// no condition is ever dropped.
func translateFilter(filter *lbq.Filter, schema *Schema) (*mongoQuery, error) {
	where, err := translateWhere(filter.Where, schema)
	if err != nil {
		return nil, err
	}

	sort, err := translateOrder(filter.Order, schema)
	if err != nil {
		return nil, err
	}

	return &mongoQuery{
		filter:     where,
		sort:       sort,
		projection: translateFields(filter.Fields, schema),
		limit:      int64(filter.Limit),
		skip:       int64(filter.Skip),
		include:    filter.Include,
	}, nil
}

func translateWhere(where lbq.Where, schema *Schema) (bson.M, error) {
	query := bson.M{}

	for key, value := range where {
		if key == "and" || key == "or" {
			clauses, err := translateAndOr(key, value, schema)
			if err != nil {
				return nil, err
			}
			query["$"+key] = clauses
			continue
		}

		field, path, ok := schema.Lookup(key)
		if !ok {
			return nil, http_errors.BadRequestErrorWithCode(FILTER_UNKNOWN_FIELD, "unknown field "+key+" in "+schema.Name+" filter")
		}

		condition, err := translateCondition(field, value)
		if err != nil {
			return nil, err
		}
		query[path] = condition
	}

	return query, nil
}

func translateAndOr(operator string, value any, schema *Schema) (bson.A, error) {
	conditions, ok := value.(lbq.AndOrCondition)
	if !ok || len(conditions) == 0 {
		return nil, http_errors.BadRequestErrorWithCode(FILTER_INVALID_CONDITION, operator+" needs a list of conditions")
	}

	clauses := make(bson.A, 0, len(conditions))
	for _, condition := range conditions {
		clause, err := translateWhere(condition, schema)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}

	return clauses, nil
}

// translateCondition converts {"gte": x, "inq": [...]} operator objects or a
// plain equality value.
func translateCondition(field *Field, value any) (any, error) {
	comparison, ok := value.(lbq.Where)
	if !ok {
		return convertValue(field, value)
	}

	condition := bson.M{}
	for operator, operand := range comparison {
		mongoOperator, ok := mongoComparisons[operator]
		if !ok {
			return nil, http_errors.BadRequestErrorWithCode(FILTER_INVALID_CONDITION, "unknown operator "+operator+" on field "+field.JSONPath)
		}

		var err error
		switch operator {
		case "inq", "nin":
			condition[mongoOperator], err = convertList(field, operand)
		case "exists":
			if _, isBool := operand.(bool); !isBool {
				err = http_errors.BadRequestErrorWithCode(FILTER_INVALID_CONDITION, "exists on field "+field.JSONPath+" must be a boolean")
			}
			condition[mongoOperator] = operand
		default:
			condition[mongoOperator], err = convertValue(field, operand)
		}
		if err != nil {
			return nil, err
		}
	}

	return condition, nil
}

// convertValue converts value to the stored type of field. nil stays nil.
func convertValue(field *Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	var converted any
	var err error
	switch field.Kind {
	case KindObjectID:
		converted, err = toObjectID(value)
	case KindDate:
		converted, err = toDate(value)
	default:
		return value, nil
	}

	if err != nil {
		return nil, http_errors.BadRequestErrorWithCode(FILTER_INVALID_VALUE, "invalid value for field "+field.JSONPath+": "+err.Error())
	}
	return converted, nil
}

// convertList converts the elements of an inq/nin list. Elements that do not
// convert cannot equal any stored value, so they are left out of the list; a
// list left empty still matches nothing.
func convertList(field *Field, value any) (any, error) {
	list := reflect.ValueOf(value)
	if list.Kind() != reflect.Slice && list.Kind() != reflect.Array {
		return nil, http_errors.BadRequestErrorWithCode(FILTER_INVALID_CONDITION, "inq and nin on field "+field.JSONPath+" need a list")
	}

	if field.Kind != KindObjectID && field.Kind != KindDate {
		return value, nil
	}

	converted := make(bson.A, 0, list.Len())
	for i := range list.Len() {
		element, err := convertValue(field, list.Index(i).Interface())
		if err != nil {
			logger.Debugf("skipping list element %v: %v", list.Index(i).Interface(), err)
			continue
		}
		converted = append(converted, element)
	}

	return converted, nil
}

func toObjectID(value any) (bson.ObjectID, error) {
	switch v := value.(type) {
	case bson.ObjectID:
		return v, nil
	case *bson.ObjectID:
		if v != nil {
			return *v, nil
		}
	case string:
		return bson.ObjectIDFromHex(v)
	case *string:
		if v != nil {
			return bson.ObjectIDFromHex(*v)
		}
	}
	return bson.ObjectID{}, errors.Errorf("%v is not an ObjectID", value)
}

// toDate accepts times, date strings and unix seconds.
func toDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case MongoDate:
		return v.Time, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	case string:
		return timeutils.ParseDateString(v)
	case int64:
		return time.Unix(v, 0), nil
	case float64:
		return time.Unix(int64(v), 0), nil
	}
	return time.Time{}, errors.Errorf("%v is not a date", value)
}

func translateOrder(order []lbq.Order, schema *Schema) (bson.D, error) {
	sort := make(bson.D, 0, len(order))

	for _, clause := range order {
		_, path, ok := schema.Lookup(clause.Field)
		if !ok {
			return nil, http_errors.BadRequestErrorWithCode(FILTER_UNKNOWN_FIELD, "cannot order "+schema.Name+" by unknown field "+clause.Field)
		}

		direction := 1
		if clause.Direction == "DESC" {
			direction = -1
		}
		sort = append(sort, bson.E{Key: path, Value: direction})
	}

	return sort, nil
}

// translateFields builds the mongo projection. Inclusive projections always
// carry the "always" fields; "never" fields are excluded in every case.
func translateFields(fields lbq.Fields, schema *Schema) bson.M {
	projection := bson.M{}
	inclusive := false

	for name, included := range fields {
		inclusive = inclusive || included

		_, path, ok := schema.Lookup(name)
		if !ok {
			logger.Debugf("projection of %s ignores unknown field %s", schema.Name, name)
			continue
		}
		projection[path] = included
	}

	never := schema.WithProjection(ProjectionNever)
	if inclusive {
		for _, field := range schema.WithProjection(ProjectionAlways) {
			projection[field.BSONPath] = true
		}
		for _, field := range never {
			delete(projection, field.BSONPath)
		}
		if len(projection) == 0 {
			return bson.M{"_id": true}
		}
		return projection
	}

	for _, field := range never {
		projection[field.BSONPath] = false
	}
	if len(projection) == 0 {
		return nil
	}
	return projection
}
