package database

import (
	"context"

	"github.com/go-errors/errors"
	"github.com/xompass/vsaas-relations/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ID is the JSON name of every model's primary key.
const ID = "id"

const (
	MONGO_CONNECTOR_TYPE_MISMATCH = "MONGO_CONNECTOR_TYPE_MISMATCH"
	MONGO_CLIENT_NOT_INITIALIZED  = "MONGO_CLIENT_NOT_INITIALIZED"
	MONGO_DATABASE_NAME_REQUIRED  = "MONGO_DATABASE_NAME_REQUIRED"
	MONGO_ID_CANNOT_BE_NIL        = "MONGO_ID_CANNOT_BE_NIL"
	MONGO_NO_DOCUMENTS_FOUND      = "MONGO_NO_DOCUMENTS_FOUND"
	MONGO_OPERATION_FAILED        = "MONGO_OPERATION_FAILED"
	MONGO_CONNECTION_ERROR        = "MONGO_CONNECTION_ERROR"
	MONGO_TIMEOUT_ERROR           = "MONGO_TIMEOUT_ERROR"
)

// mapMongoError turns driver errors into coded http_errors.
func mapMongoError(err error) error {
	var commandErr mongo.CommandError

	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return http_errors.NotFoundErrorWithCode(MONGO_NO_DOCUMENTS_FOUND, "document not found")
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err):
		return http_errors.InternalServerErrorWithCode(MONGO_TIMEOUT_ERROR, "database operation timed out")
	case errors.As(err, &commandErr):
		return http_errors.BadRequestErrorWithCode(MONGO_OPERATION_FAILED, "command failed: "+commandErr.Message)
	case mongo.IsNetworkError(err):
		return http_errors.InternalServerErrorWithCode(MONGO_CONNECTION_ERROR, "database connection error")
	default:
		return http_errors.InternalServerErrorWithCode(MONGO_OPERATION_FAILED, "database operation failed: "+err.Error())
	}
}

// MongoRepository reads models of type T from a MongoDB collection and
// resolves the relations requested by the filter includes.
type MongoRepository[T IModel] struct {
	ds         *Datasource
	connector  *MongoConnector
	collection *mongo.Collection
	schema     *Schema
	options    RepositoryOptions
}

// NewMongoRepository registers T in ds and returns its repository. The
// connector named by T must be a *MongoConnector.
func NewMongoRepository[T IModel](ds *Datasource, repositoryOptions RepositoryOptions) (Repository[T], error) {
	var model T
	if err := ds.RegisterModel(model); err != nil {
		return nil, err
	}

	registered, err := ds.GetModelConnector(model)
	if err != nil {
		return nil, err
	}

	connector, ok := registered.(*MongoConnector)
	if !ok || connector == nil {
		return nil, http_errors.InternalServerErrorWithCode(MONGO_CONNECTOR_TYPE_MISMATCH, "the connector of model "+model.GetModelName()+" is not a MongoConnector")
	}

	database, err := connector.Database()
	if err != nil {
		return nil, err
	}

	repository := &MongoRepository[T]{
		ds:         ds,
		connector:  connector,
		collection: database.Collection(model.GetTableName()),
		schema:     NewSchema(model),
		options:    repositoryOptions,
	}
	if err := RegisterDatasourceRepository(ds, model, Repository[T](repository)); err != nil {
		return nil, err
	}

	return repository, nil
}

func (r *MongoRepository[T]) GetSchema() *Schema {
	return r.schema
}

func (r *MongoRepository[T]) GetConnector() Connector {
	return r.connector
}

// prepare translates filter for the collection, hiding soft deleted
// documents when the repository is configured to.
func (r *MongoRepository[T]) prepare(filter *FilterBuilder) (*mongoQuery, error) {
	if filter == nil {
		filter = NewFilter()
	}

	built, err := filter.Build()
	if err != nil {
		return nil, err
	}

	query, err := translateFilter(built, r.schema)
	if err != nil {
		return nil, err
	}

	if r.options.Deleted {
		query.filter = withoutDeleted(query.filter)
	}
	return query, nil
}

// withoutDeleted keeps documents whose deleted field is null or missing.
func withoutDeleted(filter bson.M) bson.M {
	notDeleted := bson.M{"deleted": nil}
	if len(filter) == 0 {
		return notDeleted
	}
	return bson.M{"$and": bson.A{filter, notDeleted}}
}

func (r *MongoRepository[T]) Find(ctx context.Context, filter *FilterBuilder) ([]T, error) {
	query, err := r.prepare(filter)
	if err != nil {
		return nil, err
	}

	findOptions := options.Find()
	if len(query.sort) > 0 {
		findOptions.SetSort(query.sort)
	}
	if query.projection != nil {
		findOptions.SetProjection(query.projection)
	}
	if query.limit > 0 {
		findOptions.SetLimit(query.limit)
	}
	if query.skip > 0 {
		findOptions.SetSkip(query.skip)
	}

	cursor, err := r.collection.Find(ctx, query.filter, findOptions)
	if err != nil {
		return nil, mapMongoError(err)
	}

	docs := []T{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapMongoError(err)
	}

	if err := ResolveIncludes(ctx, r.ds, docs, query.include); err != nil {
		return nil, err
	}
	return docs, nil
}

// FindOne returns nil without error when no document matches.
func (r *MongoRepository[T]) FindOne(ctx context.Context, filter *FilterBuilder) (*T, error) {
	return findFirst[T](ctx, r, filter)
}

func (r *MongoRepository[T]) FindById(ctx context.Context, id any, filter *FilterBuilder) (*T, error) {
	if id == nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}
	return findFirst[T](ctx, r, byID(filter, id))
}

func (r *MongoRepository[T]) Count(ctx context.Context, filter *FilterBuilder) (int64, error) {
	query, err := r.prepare(filter)
	if err != nil {
		return 0, err
	}

	count, err := r.collection.CountDocuments(ctx, query.filter)
	return count, mapMongoError(err)
}

func (r *MongoRepository[T]) Exists(ctx context.Context, id any) (bool, error) {
	if id == nil {
		return false, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}

	query, err := r.prepare(byID(nil, id))
	if err != nil {
		return false, err
	}

	count, err := r.collection.CountDocuments(ctx, query.filter, options.Count().SetLimit(1))
	return count > 0, mapMongoError(err)
}

// findFirst runs Find limited to one document, so includes resolve the same
// way they do for lists.
func findFirst[T IModel](ctx context.Context, repository RelationQuery[T], filter *FilterBuilder) (*T, error) {
	if filter == nil {
		filter = NewFilter()
	}

	docs, err := repository.Find(ctx, filter.Clone().Limit(1))
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return &docs[0], nil
}

func byID(filter *FilterBuilder, id any) *FilterBuilder {
	if filter == nil {
		filter = NewFilter()
	}
	return filter.Clone().WithWhere(NewWhere().Eq(ID, id))
}
