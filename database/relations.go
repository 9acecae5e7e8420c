package database

import (
	"context"
	"reflect"

	"github.com/go-errors/errors"
	"github.com/xompass/vsaas-relations/http_errors"
	"github.com/xompass/vsaas-relations/lbq"
)

// Error codes for relation resolution
const (
	RELATION_NOT_FOUND            = "RELATION_NOT_FOUND"
	RELATION_INVALID_CONFIG       = "RELATION_INVALID_CONFIG"
	RELATION_PARENT_TYPE_MISMATCH = "RELATION_PARENT_TYPE_MISMATCH"
	RELATION_QUERY_NOT_FOUND      = "RELATION_QUERY_NOT_FOUND"
)

type RelationType string

const RelationTypeBelongsTo RelationType = "belongsTo"

// AttributeReadable reads an attribute by name. A missing attribute is nil.
type AttributeReadable interface {
	GetAttribute(name string) any
}

// RelationAttachable stores a resolved relation under the given name.
type RelationAttachable interface {
	SetRelation(name string, related any)
}

// Entity is a document that relations can read keys from and attach to.
type Entity interface {
	AttributeReadable
	RelationAttachable
}

// RelationQuery executes a filter against the related collection.
// Every Repository[T] is a RelationQuery[T].
type RelationQuery[R any] interface {
	Find(ctx context.Context, filter *FilterBuilder) ([]R, error)
}

type IRelation interface {
	Type() RelationType
	ResolveForMany(ctx context.Context, ds *Datasource, docs []IModel, scope *lbq.Filter) error // Resolve the relation for multiple documents
	ResolveForOne(ctx context.Context, ds *Datasource, doc IModel, scope *lbq.Filter) error     // Resolve the relation for a single document
	validate() error                                                                            // Validate the relation configuration
}

// IRelationalModel is implemented by models that declare relations. Keys are
// the relation names used by includes and passed to SetRelation.
type IRelationalModel interface {
	Relations() map[string]IRelation
}

// ResolveIncludes resolves every include for the batch of documents with one
// query per relation. Documents are attached in place, so T must be a pointer
// type or docs must be addressable elements of the caller's slice.
func ResolveIncludes[T IModel](ctx context.Context, ds *Datasource, docs []T, includes []lbq.Include) error {
	if len(docs) == 0 || len(includes) == 0 {
		return nil
	}

	models := make([]IModel, len(docs))
	for i := range docs {
		models[i] = relationTarget(&docs[i])
	}

	relational, ok := models[0].(IRelationalModel)
	if !ok {
		return http_errors.BadRequestErrorWithCode(RELATION_NOT_FOUND, "the model "+models[0].GetModelName()+" does not declare relations")
	}
	relations := relational.Relations()

	for _, include := range includes {
		relation, ok := relations[include.Relation]
		if !ok || relation == nil {
			return http_errors.BadRequestErrorWithCode(RELATION_NOT_FOUND, "the relation "+include.Relation+" is not defined on model "+models[0].GetModelName())
		}

		logger.Debugf("resolving %s relation %s for %d %s documents", relation.Type(), include.Relation, len(models), models[0].GetModelName())

		if err := relation.ResolveForMany(ctx, ds, models, include.Scope); err != nil {
			return err
		}
	}

	return nil
}

// relationTarget returns the value relations should attach to: the element
// itself when it is already a pointer, otherwise its address.
func relationTarget[T IModel](doc *T) IModel {
	if reflect.TypeFor[T]().Kind() == reflect.Pointer {
		return *doc
	}
	if model, ok := any(doc).(IModel); ok {
		return model
	}
	return *doc
}

// newModelInstance returns a usable zero value of R as an IModel, allocating
// the element when R is a pointer type.
func newModelInstance[R any]() (IModel, bool) {
	rt := reflect.TypeFor[R]()
	if rt.Kind() == reflect.Pointer {
		model, ok := reflect.New(rt.Elem()).Interface().(IModel)
		return model, ok
	}

	var zero R
	model, ok := any(zero).(IModel)
	return model, ok
}

// datasourceQuery finds the registered repository of the related model R.
func datasourceQuery[R any](ds *Datasource) (RelationQuery[R], error) {
	model, ok := newModelInstance[R]()
	if !ok {
		return nil, http_errors.InternalServerErrorWithCode(RELATION_QUERY_NOT_FOUND, "the related type "+reflect.TypeFor[R]().String()+" is not a model and no query was configured")
	}

	repository, err := ds.GetRepository(model.GetModelName())
	if err != nil {
		return nil, http_errors.InternalServerErrorWithCode(RELATION_QUERY_NOT_FOUND, err.Error())
	}

	query, ok := repository.(RelationQuery[R])
	if !ok {
		return nil, http_errors.InternalServerErrorWithCode(RELATION_QUERY_NOT_FOUND, errors.Errorf("the repository of model %s does not return %s", model.GetModelName(), reflect.TypeFor[R]()).Error())
	}

	return query, nil
}
