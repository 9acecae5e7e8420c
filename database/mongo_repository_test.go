package database

import (
	"context"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xompass/vsaas-relations/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type testPublisher struct {
	ID      bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name    string        `bson:"name" json:"name"`
	Founded MongoDate     `bson:"founded" json:"founded"`
}

func (p testPublisher) GetTableName() string     { return "publishers" }
func (p testPublisher) GetModelName() string     { return "Publisher" }
func (p testPublisher) GetConnectorName() string { return memoryConnectorName }
func (p testPublisher) GetId() any               { return p.ID }

func newTestMongoRepository[T IModel](options RepositoryOptions) *MongoRepository[T] {
	var instance T
	return &MongoRepository[T]{
		options: options,
		schema:  NewSchema(instance),
	}
}

func TestMongoRepositoryPrepareFilter(t *testing.T) {
	tests := []struct {
		name     string
		options  RepositoryOptions
		filter   *FilterBuilder
		expected bson.M
		wantErr  bool
	}{
		{
			name:     "nil filter",
			expected: bson.M{},
		},
		{
			name:     "eager constraint",
			filter:   NewFilter().WithWhere(NewWhere().In("authorId", []any{10, 20})),
			expected: bson.M{"authorId": bson.M{"$in": []any{10, 20}}},
		},
		{
			name:     "sentinel keys keep null",
			filter:   NewFilter().WithWhere(NewWhere().In("id", []any{nil})),
			expected: bson.M{"_id": bson.M{"$in": []any{nil}}},
		},
		{
			name:     "null equality",
			filter:   NewFilter().WithWhere(NewWhere().Eq("authorId", nil)),
			expected: bson.M{"authorId": nil},
		},
		{
			name:     "soft deleted documents are hidden",
			options:  RepositoryOptions{Deleted: true},
			expected: bson.M{"deleted": nil},
		},
		{
			name:    "soft delete is added to the conditions",
			options: RepositoryOptions{Deleted: true},
			filter:  NewFilter().WithWhere(NewWhere().Eq("title", "Dune")),
			expected: bson.M{"$and": bson.A{
				bson.M{"title": "Dune"},
				bson.M{"deleted": nil},
			}},
		},
		{
			name:   "and conditions",
			filter: NewFilter().WithWhere(NewWhere().Eq("title", "Dune")).WithWhere(NewWhere().Gt("id", 1)),
			expected: bson.M{"$and": bson.A{
				bson.M{"title": "Dune"},
				bson.M{"_id": bson.M{"$gt": 1}},
			}},
		},
		{
			name: "or conditions",
			filter: NewFilter().WithWhere(NewWhere().Or(
				NewWhere().Eq("title", "Dune"),
				NewWhere().Neq("authorId", nil),
			)),
			expected: bson.M{"$or": bson.A{
				bson.M{"title": "Dune"},
				bson.M{"authorId": bson.M{"$ne": nil}},
			}},
		},
		{
			name:    "unknown field",
			filter:  NewFilter().WithWhere(NewWhere().Eq("title", "Dune")).WithWhere(NewWhere().Eq("missing", 1)),
			wantErr: true,
		},
		{
			name:    "unknown order field",
			filter:  NewFilter().OrderByAsc("missing"),
			wantErr: true,
		},
		{
			name:    "invalid builder",
			filter:  NewFilter().WithWhere(NewWhere().Eq("", 1)),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repository := newTestMongoRepository[testBook](tt.options)

			query, err := repository.prepare(tt.filter)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, query.filter)
		})
	}
}

func TestMongoRepositoryPrepareOptions(t *testing.T) {
	repository := newTestMongoRepository[testBook](RepositoryOptions{})

	t.Run("projection uses bson names and drops never fields", func(t *testing.T) {
		query, err := repository.prepare(NewFilter().Fields(map[string]bool{"title": true, "id": true, "deleted": true}))
		require.NoError(t, err)
		assert.Equal(t, bson.M{"title": true, "_id": true}, query.projection)
	})

	t.Run("never fields are excluded by default", func(t *testing.T) {
		query, err := repository.prepare(NewFilter())
		require.NoError(t, err)
		assert.Equal(t, bson.M{"deleted": false}, query.projection)
	})

	t.Run("exclusive projection", func(t *testing.T) {
		query, err := repository.prepare(NewFilter().Fields(map[string]bool{"title": false}))
		require.NoError(t, err)
		assert.Equal(t, bson.M{"title": false, "deleted": false}, query.projection)
	})

	t.Run("sort limit and skip", func(t *testing.T) {
		query, err := repository.prepare(NewFilter().OrderByDesc("id").OrderByAsc("title").Limit(5).Skip(10))
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Key: "_id", Value: -1}, {Key: "title", Value: 1}}, query.sort)
		assert.Equal(t, int64(5), query.limit)
		assert.Equal(t, int64(10), query.skip)
		assert.Empty(t, query.include)
	})

	t.Run("includes are passed through", func(t *testing.T) {
		query, err := repository.prepare(NewFilter().Include("author", nil))
		require.NoError(t, err)
		require.Len(t, query.include, 1)
		assert.Equal(t, "author", query.include[0].Relation)
	})
}

func TestMongoRepositoryConvertsObjectIDs(t *testing.T) {
	repository := newTestMongoRepository[testPublisher](RepositoryOptions{})
	id := bson.NewObjectID()

	t.Run("inq keeps null sentinels", func(t *testing.T) {
		query, err := repository.prepare(NewFilter().WithWhere(NewWhere().In("id", []any{id.Hex(), nil})))
		require.NoError(t, err)
		assert.Equal(t, bson.M{"_id": bson.M{"$in": bson.A{id, nil}}}, query.filter)
	})

	t.Run("equality from hex", func(t *testing.T) {
		query, err := repository.prepare(NewFilter().WithWhere(NewWhere().Eq("id", id.Hex())))
		require.NoError(t, err)
		assert.Equal(t, bson.M{"_id": id}, query.filter)
	})

	t.Run("invalid equality is an error", func(t *testing.T) {
		_, err := repository.prepare(NewFilter().WithWhere(NewWhere().Eq("id", "not-an-object-id")))
		assert.True(t, http_errors.IsErrorCode(err, FILTER_INVALID_VALUE))
	})

	t.Run("dates from strings", func(t *testing.T) {
		query, err := repository.prepare(NewFilter().WithWhere(NewWhere().Gte("founded", "2024-01-02T00:00:00Z")))
		require.NoError(t, err)

		condition, ok := query.filter["founded"].(bson.M)
		require.True(t, ok)
		founded, ok := condition["$gte"].(time.Time)
		require.True(t, ok)
		assert.True(t, founded.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	})
}

// The eager query of a relation must keep its key condition even when some
// keys cannot be converted to the related id type.
func TestMongoRepositoryEagerQueryKeepsKeyCondition(t *testing.T) {
	repository := newTestMongoRepository[testPublisher](RepositoryOptions{})
	relation := NewBelongsTo[Document, Document]("publisher", "publisherId", "id")
	id := bson.NewObjectID()

	eagerFilter := func(t *testing.T, parents []Document) *FilterBuilder {
		t.Helper()
		filter := NewFilter()
		require.NoError(t, relation.AddEagerConstraints(filter, parents))
		return filter
	}

	t.Run("scoped with one invalid key", func(t *testing.T) {
		parents := []Document{{"publisherId": id}, {"publisherId": "not-an-object-id"}}
		scope := NewFilter().WithWhere(NewWhere().Eq("name", "Ann"))

		query, err := repository.prepare(scope.MergeWith(eagerFilter(t, parents)))
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$and": bson.A{
			bson.M{"name": "Ann"},
			bson.M{"_id": bson.M{"$in": bson.A{id}}},
		}}, query.filter)
	})

	t.Run("unscoped with one invalid key", func(t *testing.T) {
		parents := []Document{{"publisherId": "not-an-object-id"}, {"publisherId": id.Hex()}}

		query, err := repository.prepare(eagerFilter(t, parents))
		require.NoError(t, err)
		assert.Equal(t, bson.M{"_id": bson.M{"$in": bson.A{id}}}, query.filter)
	})

	t.Run("only invalid keys match nothing", func(t *testing.T) {
		parents := []Document{{"publisherId": "not-an-object-id"}}

		query, err := repository.prepare(eagerFilter(t, parents))
		require.NoError(t, err)
		assert.Equal(t, bson.M{"_id": bson.M{"$in": bson.A{}}}, query.filter)
	})
}

func TestMapMongoError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		errorCode  string
	}{
		{name: "no documents", err: mongo.ErrNoDocuments, statusCode: 404, errorCode: MONGO_NO_DOCUMENTS_FOUND},
		{name: "wrapped no documents", err: errors.WrapPrefix(mongo.ErrNoDocuments, "find", 0), statusCode: 404, errorCode: MONGO_NO_DOCUMENTS_FOUND},
		{name: "deadline", err: context.DeadlineExceeded, statusCode: 500, errorCode: MONGO_TIMEOUT_ERROR},
		{name: "command error", err: mongo.CommandError{Code: 2, Message: "bad value"}, statusCode: 400, errorCode: MONGO_OPERATION_FAILED},
		{name: "unknown", err: errors.New("boom"), statusCode: 500, errorCode: MONGO_OPERATION_FAILED},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapMongoError(tt.err)

			var response *http_errors.ErrorResponse
			require.True(t, errors.As(err, &response))
			assert.Equal(t, tt.statusCode, response.Code)
			assert.Equal(t, tt.errorCode, response.ErrorCode)
		})
	}

	assert.NoError(t, mapMongoError(nil))
}

func TestNewMongoRepositoryRequiresMongoConnector(t *testing.T) {
	ds := newMemoryDatasource(t)

	_, err := NewMongoRepository[testBook](ds, RepositoryOptions{})
	assert.True(t, http_errors.IsErrorCode(err, MONGO_CONNECTOR_TYPE_MISMATCH))
}

func TestMongoRepositoryRejectsNilIDs(t *testing.T) {
	repository := newTestMongoRepository[testBook](RepositoryOptions{})

	_, err := repository.FindById(context.Background(), nil, nil)
	assert.True(t, http_errors.IsErrorCode(err, MONGO_ID_CANNOT_BE_NIL))

	_, err = repository.Exists(context.Background(), nil)
	assert.True(t, http_errors.IsErrorCode(err, MONGO_ID_CANNOT_BE_NIL))
}

func TestDefaultMongoConnectorOpts(t *testing.T) {
	t.Run("database from the uri", func(t *testing.T) {
		t.Setenv("MONGO_URI", "mongodb://db.example:27017/library")

		opts, err := defaultMongoConnectorOpts()
		require.NoError(t, err)
		assert.Equal(t, "mongodb", opts.Name)
		assert.Equal(t, "library", opts.Database)
		assert.Equal(t, "mongodb://db.example:27017/library", opts.URI)
	})

	t.Run("MONGO_DATABASE wins", func(t *testing.T) {
		t.Setenv("MONGO_URI", "mongodb://db.example:27017/library")
		t.Setenv("MONGO_DATABASE", "archive")

		opts, err := defaultMongoConnectorOpts()
		require.NoError(t, err)
		assert.Equal(t, "archive", opts.Database)
	})

	t.Run("invalid uri", func(t *testing.T) {
		t.Setenv("MONGO_URI", "postgres://db.example")

		_, err := defaultMongoConnectorOpts()
		assert.Error(t, err)
	})

	t.Run("database is required", func(t *testing.T) {
		_, err := NewMongoConnector(MongoConnectorOpts{Name: "mongodb"})
		assert.True(t, http_errors.IsErrorCode(err, MONGO_DATABASE_NAME_REQUIRED))
	})

	var connector *MongoConnector
	_, err := connector.Database()
	assert.True(t, http_errors.IsErrorCode(err, MONGO_CLIENT_NOT_INITIALIZED))
}
