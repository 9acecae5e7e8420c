package database

import (
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Document is a schemaless entity. Attributes are read with dotted paths
// ("owner.id") through nested documents; relations are stored as keys.
type Document map[string]any

func (d Document) GetAttribute(name string) any {
	if value, ok := d[name]; ok {
		return value
	}

	if !strings.Contains(name, ".") {
		return nil
	}

	var current any = map[string]any(d)
	for _, part := range strings.Split(name, ".") {
		value, ok := lookupField(current, part)
		if !ok {
			return nil
		}
		current = value
	}
	return current
}

func (d Document) SetRelation(name string, related any) {
	d[name] = related
}

// Relation returns the value attached under name, if any.
func (d Document) Relation(name string) (any, bool) {
	value, ok := d[name]
	return value, ok
}

func lookupField(doc any, name string) (any, bool) {
	switch v := doc.(type) {
	case Document:
		value, ok := v[name]
		return value, ok
	case map[string]any:
		value, ok := v[name]
		return value, ok
	case bson.M:
		value, ok := v[name]
		return value, ok
	case bson.D:
		for _, elem := range v {
			if elem.Key == name {
				return elem.Value, true
			}
		}
	}
	return nil, false
}
