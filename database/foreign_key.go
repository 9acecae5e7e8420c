package database

import (
	"math"
	"reflect"
	"strconv"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrInvalidKeyType is returned when a key attribute is neither absent, a
// scalar, nor a sequence of scalars.
var ErrInvalidKeyType = errors.New("invalid key type")

type ForeignKeyKind uint8

const (
	ForeignKeyAbsent ForeignKeyKind = iota
	ForeignKeyScalar
	ForeignKeyMulti
)

func (k ForeignKeyKind) String() string {
	switch k {
	case ForeignKeyAbsent:
		return "absent"
	case ForeignKeyScalar:
		return "scalar"
	case ForeignKeyMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// ForeignKeyValue is the value of a key attribute: absent, a single scalar or
// a sequence of scalars (document stores allow array-valued foreign keys).
type ForeignKeyValue struct {
	Kind   ForeignKeyKind
	Scalar any
	Multi  []any
}

func AbsentKey() ForeignKeyValue {
	return ForeignKeyValue{Kind: ForeignKeyAbsent}
}

func ScalarKey(value any) ForeignKeyValue {
	return ForeignKeyValue{Kind: ForeignKeyScalar, Scalar: value}
}

func MultiKey(values ...any) ForeignKeyValue {
	return ForeignKeyValue{Kind: ForeignKeyMulti, Multi: values}
}

// Values returns the non-nil identifiers held by the key.
func (v ForeignKeyValue) Values() []any {
	switch v.Kind {
	case ForeignKeyScalar:
		return []any{v.Scalar}
	case ForeignKeyMulti:
		values := make([]any, 0, len(v.Multi))
		for _, value := range v.Multi {
			if value != nil {
				values = append(values, value)
			}
		}
		return values
	default:
		return nil
	}
}

// ParseForeignKey classifies a raw attribute value. Nil values and nil pointers
// are absent, pointers are dereferenced, slices become Multi and fixed size
// arrays (ObjectID, UUID) stay scalars.
func ParseForeignKey(raw any) (ForeignKeyValue, error) {
	value, ok := indirectValue(raw)
	if !ok {
		return AbsentKey(), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice {
		if _, isDocument := value.(bson.D); isDocument {
			return ForeignKeyValue{}, errors.WrapPrefix(ErrInvalidKeyType, "document value", 0)
		}

		values := make([]any, 0, rv.Len())
		for i := range rv.Len() {
			element, ok := indirectValue(rv.Index(i).Interface())
			if !ok {
				values = append(values, nil)
				continue
			}
			if !isScalar(element) {
				return ForeignKeyValue{}, errors.WrapPrefix(ErrInvalidKeyType, "sequence element of type "+reflect.TypeOf(element).String(), 0)
			}
			values = append(values, element)
		}
		return MultiKey(values...), nil
	}

	if !isScalar(value) {
		return ForeignKeyValue{}, errors.WrapPrefix(ErrInvalidKeyType, "value of type "+rv.Type().String(), 0)
	}

	return ScalarKey(value), nil
}

func indirectValue(raw any) (any, bool) {
	if raw == nil {
		return nil, false
	}

	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	return rv.Interface(), true
}

func isScalar(value any) bool {
	rv := reflect.ValueOf(value)
	switch rv.Kind() { //nolint:exhaustive
	case reflect.Slice, reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return false
	}
	return rv.Comparable()
}

// normalizeKey maps a scalar identifier to the value used in dictionaries, so
// that keys decoded with different Go types still match: integers and integral
// floats become int64, ObjectIDs their hex form and UUIDs their string form.
func normalizeKey(value any) (any, error) {
	switch v := value.(type) {
	case string, bool:
		return v, nil
	case bson.ObjectID:
		return v.Hex(), nil
	case uuid.UUID:
		return v.String(), nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return normalizeUnsigned(uint64(v)), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return normalizeUnsigned(v), nil
	case float32:
		return normalizeFloat(float64(v)), nil
	case float64:
		return normalizeFloat(v), nil
	}

	if !isScalar(value) {
		return nil, errors.WrapPrefix(ErrInvalidKeyType, "key of type "+reflect.TypeOf(value).String(), 0)
	}

	return value, nil
}

func normalizeUnsigned(v uint64) any {
	if v > math.MaxInt64 {
		return v
	}
	return int64(v)
}

func normalizeFloat(v float64) any {
	if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
		return int64(v)
	}
	return v
}

// attributeName turns a sequence element into the attribute name used by the
// nested lookup of array-valued foreign keys.
func attributeName(value any) (string, error) {
	key, err := normalizeKey(value)
	if err != nil {
		return "", err
	}

	switch k := key.(type) {
	case string:
		return k, nil
	case int64:
		return strconv.FormatInt(k, 10), nil
	case uint64:
		return strconv.FormatUint(k, 10), nil
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(k), nil
	default:
		return "", errors.WrapPrefix(ErrInvalidKeyType, "attribute name of type "+reflect.TypeOf(key).String(), 0)
	}
}
