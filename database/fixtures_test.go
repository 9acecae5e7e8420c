package database

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xompass/vsaas-relations/lbq"
)

const memoryConnectorName = "memory"

type testCountry struct {
	ID   string `bson:"_id" json:"id"`
	Name string `bson:"name" json:"name"`
}

func (c testCountry) GetTableName() string     { return "countries" }
func (c testCountry) GetModelName() string     { return "Country" }
func (c testCountry) GetConnectorName() string { return memoryConnectorName }
func (c testCountry) GetId() any               { return c.ID }

func (c testCountry) GetAttribute(name string) any {
	switch name {
	case "id":
		return c.ID
	case "name":
		return c.Name
	}
	return nil
}

type testAuthor struct {
	ID        int64        `bson:"_id" json:"id"`
	Name      string       `bson:"name" json:"name"`
	CountryID *string      `bson:"countryId,omitempty" json:"countryId,omitempty"`
	Country   *testCountry `bson:"-" json:"country,omitempty"`
}

func (a testAuthor) GetTableName() string     { return "authors" }
func (a testAuthor) GetModelName() string     { return "Author" }
func (a testAuthor) GetConnectorName() string { return memoryConnectorName }
func (a testAuthor) GetId() any               { return a.ID }
func (a testAuthor) IsIncrementing() bool     { return true }

func (a testAuthor) GetAttribute(name string) any {
	switch name {
	case "id":
		return a.ID
	case "name":
		return a.Name
	case "countryId":
		return a.CountryID
	}
	return nil
}

func (a *testAuthor) SetRelation(name string, related any) {
	if country, ok := related.(testCountry); ok && name == "country" {
		a.Country = &country
	}
}

func (a testAuthor) Relations() map[string]IRelation {
	return map[string]IRelation{
		"country": NewBelongsTo[*testAuthor, testCountry]("country", "countryId", "id"),
	}
}

type testBook struct {
	ID       int64       `bson:"_id" json:"id"`
	Title    string      `bson:"title" json:"title"`
	AuthorID any         `bson:"authorId" json:"authorId"`
	Primary  any         `bson:"primary,omitempty" json:"primary,omitempty"`
	Author   *testAuthor `bson:"-" json:"author,omitempty"`
	Deleted  *MongoDate  `bson:"deleted,omitempty" json:"deleted,omitempty" filter:"fields=never"`
}

func (b testBook) GetTableName() string     { return "books" }
func (b testBook) GetModelName() string     { return "Book" }
func (b testBook) GetConnectorName() string { return memoryConnectorName }
func (b testBook) GetId() any               { return b.ID }

func (b testBook) GetAttribute(name string) any {
	switch name {
	case "id":
		return b.ID
	case "title":
		return b.Title
	case "authorId":
		return b.AuthorID
	case "primary":
		return b.Primary
	}
	return nil
}

func (b *testBook) SetRelation(name string, related any) {
	if author, ok := related.(testAuthor); ok && name == "author" {
		b.Author = &author
	}
}

func (b testBook) Relations() map[string]IRelation {
	return map[string]IRelation{
		"author": NewBelongsTo[*testBook, testAuthor]("author", "authorId", "id"),
	}
}

type memoryConnector struct {
	name string
}

func (c *memoryConnector) Ping() error             { return nil }
func (c *memoryConnector) Disconnect() error       { return nil }
func (c *memoryConnector) GetName() string         { return c.name }
func (c *memoryConnector) GetDatabaseName() string { return "memory" }
func (c *memoryConnector) GetDriver() any          { return nil }

// memoryRepository evaluates eq, neq, inq, and, or conditions against the
// attributes of its documents and records every filter it receives.
type memoryRepository[T IModel] struct {
	ds        *Datasource
	connector Connector
	schema    *Schema
	docs      []T
	filters   []*lbq.Filter
}

func newMemoryDatasource(t *testing.T) *Datasource {
	t.Helper()

	ds := &Datasource{}
	require.NoError(t, ds.AddConnector(&memoryConnector{name: memoryConnectorName}))
	return ds
}

func newMemoryRepository[T IModel](t *testing.T, ds *Datasource, docs ...T) *memoryRepository[T] {
	t.Helper()

	var instance T
	require.NoError(t, ds.RegisterModel(instance))

	connector, err := ds.GetModelConnector(instance)
	require.NoError(t, err)

	repository := &memoryRepository[T]{
		ds:        ds,
		connector: connector,
		schema:    NewSchema(instance),
		docs:      docs,
	}
	require.NoError(t, RegisterDatasourceRepository(ds, instance, Repository[T](repository)))
	return repository
}

func (m *memoryRepository[T]) GetSchema() *Schema {
	return m.schema
}

func (m *memoryRepository[T]) GetConnector() Connector {
	return m.connector
}

func (m *memoryRepository[T]) Find(ctx context.Context, filterBuilder *FilterBuilder) ([]T, error) {
	if filterBuilder == nil {
		filterBuilder = NewFilter()
	}

	filter, err := filterBuilder.Build()
	if err != nil {
		return nil, err
	}
	m.filters = append(m.filters, filter)

	results := []T{}
	for _, doc := range m.docs {
		if matchWhere(any(doc).(AttributeReadable), filter.Where) {
			results = append(results, doc)
		}
	}

	if filter.Limit > 0 && len(results) > int(filter.Limit) {
		results = results[:filter.Limit]
	}

	if err := ResolveIncludes(ctx, m.ds, results, filter.Include); err != nil {
		return nil, err
	}
	return results, nil
}

func (m *memoryRepository[T]) FindOne(ctx context.Context, filterBuilder *FilterBuilder) (*T, error) {
	return findFirst[T](ctx, m, filterBuilder)
}

func (m *memoryRepository[T]) FindById(ctx context.Context, id any, filterBuilder *FilterBuilder) (*T, error) {
	return findFirst[T](ctx, m, byID(filterBuilder, id))
}

func (m *memoryRepository[T]) Count(ctx context.Context, filterBuilder *FilterBuilder) (int64, error) {
	results, err := m.Find(ctx, filterBuilder)
	return int64(len(results)), err
}

func (m *memoryRepository[T]) Exists(ctx context.Context, id any) (bool, error) {
	doc, err := m.FindById(ctx, id, nil)
	return doc != nil, err
}

func matchWhere(doc AttributeReadable, where lbq.Where) bool {
	for key, condition := range where {
		switch key {
		case "and":
			for _, nested := range condition.(lbq.AndOrCondition) {
				if !matchWhere(doc, nested) {
					return false
				}
			}
		case "or":
			matched := false
			for _, nested := range condition.(lbq.AndOrCondition) {
				matched = matched || matchWhere(doc, nested)
			}
			if !matched {
				return false
			}
		default:
			if !matchCondition(doc.GetAttribute(key), condition) {
				return false
			}
		}
	}
	return true
}

func matchCondition(value any, condition any) bool {
	operators, ok := condition.(lbq.Where)
	if !ok {
		return sameKey(value, condition)
	}

	for operator, operand := range operators {
		switch operator {
		case "eq":
			if !sameKey(value, operand) {
				return false
			}
		case "neq":
			if sameKey(value, operand) {
				return false
			}
		case "inq":
			found := false
			list := reflect.ValueOf(operand)
			for i := range list.Len() {
				found = found || sameKey(value, list.Index(i).Interface())
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func sameKey(a any, b any) bool {
	left, leftOk := indirectValue(a)
	right, rightOk := indirectValue(b)
	if !leftOk || !rightOk {
		return !leftOk && !rightOk
	}

	leftKey, err := normalizeKey(left)
	if err != nil {
		return false
	}
	rightKey, err := normalizeKey(right)
	if err != nil {
		return false
	}
	return leftKey == rightKey
}

type mockRelationQuery[R any] struct {
	mock.Mock
}

func (m *mockRelationQuery[R]) Find(ctx context.Context, filter *FilterBuilder) ([]R, error) {
	args := m.Called(ctx, filter)
	results, _ := args.Get(0).([]R)
	return results, args.Error(1)
}

func whereOf(t *testing.T, filter *FilterBuilder) lbq.Where {
	t.Helper()

	built, err := filter.Build()
	require.NoError(t, err)
	return built.Where
}

func stringPtr(s string) *string {
	return &s
}
