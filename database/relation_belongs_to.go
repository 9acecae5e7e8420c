package database

import (
	"context"
	"reflect"

	"github.com/go-errors/errors"
	"github.com/go-playground/validator/v10"
	"github.com/xompass/vsaas-relations/http_errors"
	"github.com/xompass/vsaas-relations/lbq"
)

var relationValidator = validator.New(validator.WithRequiredStructEnabled())

// BelongsTo resolves the inverse side of a one-to-one relation: the parent P
// holds the foreign key, the related R holds the other key (usually its id).
// The foreign key may be a scalar, nil, or an array of scalars.
type BelongsTo[P Entity, R AttributeReadable] struct {
	Relation     string `validate:"required"` // Name passed to SetRelation, e.g. "author"
	ForeignKey   string `validate:"required"` // Attribute of the parent, e.g. "authorId"
	OtherKey     string `validate:"required"` // Attribute of the related document, e.g. "id"
	Incrementing bool   // Related ids are auto-incrementing numbers

	// Query fetches related documents. When nil, the repository registered in
	// the datasource for R is used.
	Query RelationQuery[R] `validate:"-"`
}

func NewBelongsTo[P Entity, R AttributeReadable](relation string, foreignKey string, otherKey string) *BelongsTo[P, R] {
	return &BelongsTo[P, R]{
		Relation:   relation,
		ForeignKey: foreignKey,
		OtherKey:   otherKey,
	}
}

func (r *BelongsTo[P, R]) WithQuery(query RelationQuery[R]) *BelongsTo[P, R] {
	r.Query = query
	return r
}

func (r *BelongsTo[P, R]) Type() RelationType {
	return RelationTypeBelongsTo
}

func (r *BelongsTo[P, R]) validate() error {
	if r == nil {
		return http_errors.InternalServerErrorWithCode(RELATION_INVALID_CONFIG, "belongsTo relation is nil")
	}

	if err := relationValidator.Struct(r); err != nil {
		var fields []string
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			for _, fieldError := range validationErrors {
				fields = append(fields, fieldError.Field())
			}
		}
		return http_errors.InternalServerErrorWithCode(RELATION_INVALID_CONFIG, "invalid belongsTo relation "+r.Relation+": "+err.Error(), fields)
	}

	return nil
}

// AddConstraints filters the related collection down to the document the
// parent points to. It does nothing when withConstraints is false, which is
// the case while eager constraints are being prepared.
func (r *BelongsTo[P, R]) AddConstraints(filter *FilterBuilder, parent P, withConstraints bool) error {
	if !withConstraints {
		return nil
	}

	fk, err := ParseForeignKey(parent.GetAttribute(r.ForeignKey))
	if err != nil {
		return errors.WrapPrefix(err, r.ForeignKey, 0)
	}

	switch fk.Kind {
	case ForeignKeyScalar:
		filter.WithWhere(NewWhere().Eq(r.OtherKey, fk.Scalar))
	case ForeignKeyMulti:
		filter.WithWhere(NewWhere().In(r.OtherKey, r.keysOrEmpty(fk.Values())))
	case ForeignKeyAbsent:
		filter.WithWhere(NewWhere().Eq(r.OtherKey, nil))
	}

	return nil
}

// AddEagerConstraints adds a single "other key in keys" condition covering
// every parent of the batch.
func (r *BelongsTo[P, R]) AddEagerConstraints(filter *FilterBuilder, parents []P) error {
	keys, err := r.EagerKeys(parents)
	if err != nil {
		return err
	}

	filter.WithWhere(NewWhere().In(r.OtherKey, keys))
	return nil
}

// EagerKeys collects the unique, non-nil foreign key values of the parents.
// Array-valued keys are flattened. When no parent has a key, the result holds a
// single sentinel (0 for incrementing ids, nil otherwise) so the query still
// runs and matches nothing.
func (r *BelongsTo[P, R]) EagerKeys(parents []P) ([]any, error) {
	var keys []any
	seen := map[any]struct{}{}

	for _, parent := range parents {
		fk, err := ParseForeignKey(parent.GetAttribute(r.ForeignKey))
		if err != nil {
			return nil, errors.WrapPrefix(err, r.ForeignKey, 0)
		}

		for _, value := range fk.Values() {
			key, err := normalizeKey(value)
			if err != nil {
				return nil, errors.WrapPrefix(err, r.ForeignKey, 0)
			}
			if _, exists := seen[key]; exists {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, value)
		}
	}

	return r.keysOrEmpty(keys), nil
}

func (r *BelongsTo[P, R]) keysOrEmpty(keys []any) []any {
	if len(keys) > 0 {
		return keys
	}

	if r.isIncrementing() {
		return []any{0}
	}
	return []any{nil}
}

func (r *BelongsTo[P, R]) isIncrementing() bool {
	if r.Incrementing {
		return true
	}

	var related R
	if rt := reflect.TypeFor[R](); rt.Kind() == reflect.Pointer {
		related, _ = reflect.New(rt.Elem()).Interface().(R)
	}

	incrementing, ok := any(related).(IncrementingModel)
	return ok && incrementing.IsIncrementing()
}

// BuildDictionary indexes the related documents by their other key. Documents
// without the key are skipped; on duplicate keys the last document wins.
func (r *BelongsTo[P, R]) BuildDictionary(results []R) (map[any]R, error) {
	dictionary := make(map[any]R, len(results))

	for _, result := range results {
		value, ok := indirectValue(result.GetAttribute(r.OtherKey))
		if !ok {
			continue
		}

		key, err := normalizeKey(value)
		if err != nil {
			return nil, errors.WrapPrefix(err, r.OtherKey, 0)
		}
		dictionary[key] = result
	}

	return dictionary, nil
}

// Match attaches to every parent the related document its foreign key points to.
func (r *BelongsTo[P, R]) Match(parents []P, results []R, relation string) ([]P, error) {
	dictionary, err := r.BuildDictionary(results)
	if err != nil {
		return nil, err
	}

	return r.MatchDictionary(parents, dictionary, relation)
}

// MatchDictionary matches parents against an already built dictionary.
//
// For array-valued foreign keys each element names another attribute of the
// parent, and the value of that attribute is the dictionary key. Parents whose
// key finds no related document are left untouched.
func (r *BelongsTo[P, R]) MatchDictionary(parents []P, dictionary map[any]R, relation string) ([]P, error) {
	for _, parent := range parents {
		fk, err := ParseForeignKey(parent.GetAttribute(r.ForeignKey))
		if err != nil {
			return nil, errors.WrapPrefix(err, r.ForeignKey, 0)
		}

		switch fk.Kind {
		case ForeignKeyScalar:
			related, found, err := lookupDictionary(dictionary, fk.Scalar)
			if err != nil {
				return nil, errors.WrapPrefix(err, r.ForeignKey, 0)
			}
			if found {
				parent.SetRelation(relation, related)
			}
		case ForeignKeyMulti:
			for _, element := range fk.Values() {
				name, err := attributeName(element)
				if err != nil {
					return nil, errors.WrapPrefix(err, r.ForeignKey, 0)
				}

				nested, err := ParseForeignKey(parent.GetAttribute(name))
				if err != nil {
					return nil, errors.WrapPrefix(err, name, 0)
				}

				switch nested.Kind {
				case ForeignKeyAbsent:
					continue
				case ForeignKeyMulti:
					return nil, errors.WrapPrefix(ErrInvalidKeyType, name+": sequence used as key", 0)
				case ForeignKeyScalar:
					related, found, err := lookupDictionary(dictionary, nested.Scalar)
					if err != nil {
						return nil, errors.WrapPrefix(err, name, 0)
					}
					if found {
						parent.SetRelation(relation, related)
					}
				}
			}
		case ForeignKeyAbsent:
		}
	}

	return parents, nil
}

func lookupDictionary[R any](dictionary map[any]R, value any) (R, bool, error) {
	var zero R

	key, err := normalizeKey(value)
	if err != nil {
		return zero, false, err
	}

	related, found := dictionary[key]
	return related, found, nil
}

func (r *BelongsTo[P, R]) query(ds *Datasource) (RelationQuery[R], error) {
	if r.Query != nil {
		return r.Query, nil
	}
	return datasourceQuery[R](ds)
}

// EagerLoad fetches the related documents of every parent with a single query
// and attaches them under r.Relation. scope narrows the related query.
func (r *BelongsTo[P, R]) EagerLoad(ctx context.Context, parents []P, scope *FilterBuilder) ([]P, error) {
	return r.eagerLoad(ctx, nil, parents, scope)
}

func (r *BelongsTo[P, R]) eagerLoad(ctx context.Context, ds *Datasource, parents []P, scope *FilterBuilder) ([]P, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	if len(parents) == 0 {
		return parents, nil
	}

	query, err := r.query(ds)
	if err != nil {
		return nil, err
	}

	filter := NewFilter()
	if err := r.AddEagerConstraints(filter, parents); err != nil {
		return nil, err
	}
	if scope != nil {
		filter = scope.MergeWith(filter).requireField(r.OtherKey)
	}

	if logger.Level() <= logLevels[LogLevelDebug] {
		filterJSON, _ := filter.ToJSON()
		logger.Debugf("belongsTo %s: %d parents, filter %s", r.Relation, len(parents), filterJSON)
	}

	results, err := query.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	return r.Match(parents, results, r.Relation)
}

// GetResults lazily loads the related document of a single parent. The second
// return value is false when the parent points to nothing.
func (r *BelongsTo[P, R]) GetResults(ctx context.Context, parent P, scope *FilterBuilder) (R, bool, error) {
	return r.getResults(ctx, nil, parent, scope)
}

func (r *BelongsTo[P, R]) getResults(ctx context.Context, ds *Datasource, parent P, scope *FilterBuilder) (R, bool, error) {
	var zero R

	if err := r.validate(); err != nil {
		return zero, false, err
	}

	query, err := r.query(ds)
	if err != nil {
		return zero, false, err
	}

	filter := NewFilter()
	if err := r.AddConstraints(filter, parent, true); err != nil {
		return zero, false, err
	}
	if scope != nil {
		filter = scope.MergeWith(filter)
	}
	filter.Limit(1)

	results, err := query.Find(ctx, filter)
	if err != nil {
		return zero, false, err
	}
	if len(results) == 0 {
		return zero, false, nil
	}

	return results[0], true, nil
}

func (r *BelongsTo[P, R]) parents(docs []IModel) ([]P, error) {
	parents := make([]P, 0, len(docs))
	for _, doc := range docs {
		parent, ok := doc.(P)
		if !ok {
			return nil, http_errors.InternalServerErrorWithCode(RELATION_PARENT_TYPE_MISMATCH, errors.Errorf("relation %s expects %s documents, got %T", r.Relation, reflect.TypeFor[P](), doc).Error())
		}
		parents = append(parents, parent)
	}
	return parents, nil
}

func (r *BelongsTo[P, R]) ResolveForMany(ctx context.Context, ds *Datasource, docs []IModel, scope *lbq.Filter) error {
	parents, err := r.parents(docs)
	if err != nil {
		return err
	}

	_, err = r.eagerLoad(ctx, ds, parents, scopeFilter(scope))
	return err
}

func (r *BelongsTo[P, R]) ResolveForOne(ctx context.Context, ds *Datasource, doc IModel, scope *lbq.Filter) error {
	return r.ResolveForMany(ctx, ds, []IModel{doc}, scope)
}

func scopeFilter(scope *lbq.Filter) *FilterBuilder {
	if scope == nil {
		return nil
	}
	return NewFilter().FromLBFilter(scope)
}
