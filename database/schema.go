package database

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type FieldKind uint8

const (
	KindValue FieldKind = iota
	KindObjectID
	KindDate
	KindDocument
)

// Projection is the `filter:"fields=..."` option of a field.
type Projection string

const (
	ProjectionDefault Projection = ""
	ProjectionAlways  Projection = "always" // kept in every inclusive projection
	ProjectionNever   Projection = "never"  // never returned
)

// Field is a filterable attribute of a model. Nested fields use dotted paths.
type Field struct {
	Name       string // Go field name
	JSONPath   string // name used by filters, e.g. "summary.text"
	BSONPath   string // name stored in mongo, e.g. "summary.text"
	Kind       FieldKind
	Projection Projection
}

// Schema maps the JSON names used in filters to stored fields.
type Schema struct {
	Name       string
	Collection string
	fields     map[string]*Field
}

var (
	objectIDType  = reflect.TypeFor[bson.ObjectID]()
	timeType      = reflect.TypeFor[time.Time]()
	mongoDateType = reflect.TypeFor[MongoDate]()
	modelType     = reflect.TypeFor[IModel]()
)

// NewSchema reflects the stored fields of model. Fields holding declared
// relations, other models or `bson:"-"` are left out.
func NewSchema(model IModel) *Schema {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	schema := &Schema{
		Name:       model.GetModelName(),
		Collection: model.GetTableName(),
		fields:     map[string]*Field{},
	}
	schema.walk(t, "", "", declaredRelations(t), map[reflect.Type]bool{t: true})
	return schema
}

// declaredRelations returns the relations of a zero value of t.
func declaredRelations(t reflect.Type) map[string]IRelation {
	if relational, ok := reflect.New(t).Interface().(IRelationalModel); ok {
		return relational.Relations()
	}
	return nil
}

// walk adds the fields of t. visiting holds the struct types being walked so
// recursive types stop at their first repetition.
func (s *Schema) walk(t reflect.Type, jsonPrefix string, bsonPrefix string, relations map[string]IRelation, visiting map[reflect.Type]bool) {
	for i := range t.NumField() {
		structField := t.Field(i)
		if !structField.IsExported() {
			continue
		}

		bsonName, bsonOptions := tagName(structField, "bson")
		jsonName, _ := tagName(structField, "json")
		if bsonName == "-" || jsonName == "-" {
			continue
		}
		if _, ok := relations[structField.Name]; ok {
			continue
		}
		if _, ok := relations[jsonName]; ok {
			continue
		}

		fieldType := structField.Type
		for fieldType.Kind() == reflect.Pointer {
			fieldType = fieldType.Elem()
		}
		if fieldType.Implements(modelType) {
			continue
		}

		if strings.Contains(bsonOptions, "inline") && fieldType.Kind() == reflect.Struct {
			s.walkNested(fieldType, jsonPrefix, bsonPrefix, visiting)
			continue
		}

		projection, err := parseProjection(structField)
		if err != nil {
			logger.Warnf("schema %s: %v", s.Name, err)
		}

		field := &Field{
			Name:       structField.Name,
			JSONPath:   jsonPrefix + jsonName,
			BSONPath:   bsonPrefix + bsonName,
			Kind:       fieldKind(fieldType),
			Projection: projection,
		}
		s.fields[field.JSONPath] = field

		if field.Kind == KindDocument {
			s.walkNested(documentType(fieldType), field.JSONPath+".", field.BSONPath+".", visiting)
		}
	}
}

func (s *Schema) walkNested(t reflect.Type, jsonPrefix string, bsonPrefix string, visiting map[reflect.Type]bool) {
	if visiting[t] {
		return
	}

	visiting[t] = true
	s.walk(t, jsonPrefix, bsonPrefix, nil, visiting)
	delete(visiting, t)
}

func fieldKind(t reflect.Type) FieldKind {
	if t.Kind() == reflect.Slice {
		t = t.Elem()
	}

	switch {
	case t == objectIDType:
		return KindObjectID
	case t == timeType || t == mongoDateType:
		return KindDate
	case t.Kind() == reflect.Struct:
		return KindDocument
	default:
		return KindValue
	}
}

func documentType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Slice {
		return t.Elem()
	}
	return t
}

// tagName returns the name of a bson or json tag, defaulting to the lower
// cased field name, and the options after it.
func tagName(field reflect.StructField, key string) (string, string) {
	name, options, _ := strings.Cut(field.Tag.Get(key), ",")
	if name == "" {
		name = strings.ToLower(field.Name)
	}
	return name, options
}

func parseProjection(field reflect.StructField) (Projection, error) {
	tag, ok := field.Tag.Lookup("filter")
	if !ok {
		return ProjectionDefault, nil
	}

	for _, option := range strings.Split(tag, ",") {
		key, value, found := strings.Cut(option, "=")
		if !found {
			return ProjectionDefault, errors.Errorf("invalid filter tag %q on field %s", option, field.Name)
		}
		if key != "fields" {
			continue
		}

		switch projection := Projection(value); projection {
		case ProjectionAlways, ProjectionNever:
			return projection, nil
		default:
			return ProjectionDefault, errors.Errorf("invalid fields option %q on field %s", value, field.Name)
		}
	}

	return ProjectionDefault, nil
}

// Lookup finds the field for a JSON path. Paths below a known field, such as
// "metadata.color" for a map field "metadata", resolve to that field, and the
// returned BSON path keeps the remainder.
func (s *Schema) Lookup(path string) (*Field, string, bool) {
	for prefix := path; ; {
		if field, ok := s.fields[prefix]; ok {
			return field, field.BSONPath + path[len(prefix):], true
		}

		dot := strings.LastIndex(prefix, ".")
		if dot < 0 {
			return nil, "", false
		}
		prefix = prefix[:dot]
	}
}

// WithProjection returns the fields declared with the given projection option.
func (s *Schema) WithProjection(projection Projection) []*Field {
	var fields []*Field
	for _, field := range s.fields {
		if field.Projection == projection {
			fields = append(fields, field)
		}
	}
	return fields
}
