package database

import (
	"context"
	"time"

	"github.com/go-errors/errors"
	"github.com/xompass/vsaas-relations/helpers"
	"github.com/xompass/vsaas-relations/http_errors"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

const defaultMongoTimeout = 10 * time.Second

type MongoConnectorOpts struct {
	Name     string
	Database string
	URI      string
	// Timeout bounds Ping and Disconnect. Zero means 10 seconds.
	Timeout time.Duration
	// Client is applied after URI, so it can override what the URI sets.
	Client *options.ClientOptions
}

type MongoConnector struct {
	name     string
	database string
	timeout  time.Duration
	client   *mongo.Client
}

// NewMongoConnector connects to MongoDB with opts and pings the server.
func NewMongoConnector(opts MongoConnectorOpts) (*MongoConnector, error) {
	if opts.Database == "" {
		return nil, http_errors.InternalServerErrorWithCode(MONGO_DATABASE_NAME_REQUIRED, "connector "+opts.Name+" needs a database name")
	}

	clientOptions := options.Client()
	if opts.URI != "" {
		clientOptions.ApplyURI(opts.URI)
	}

	client, err := mongo.Connect(clientOptions, opts.Client)
	if err != nil {
		return nil, mapMongoError(err)
	}

	connector := &MongoConnector{
		name:     opts.Name,
		database: opts.Database,
		timeout:  opts.Timeout,
		client:   client,
	}
	if connector.timeout <= 0 {
		connector.timeout = defaultMongoTimeout
	}

	if err := connector.Ping(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Infof("connected to mongodb, connector %s, database %s", opts.Name, opts.Database)
	return connector, nil
}

// NewDefaultMongoConnector connects the "mongodb" connector using MONGO_URI
// and MONGO_DATABASE.
func NewDefaultMongoConnector() (*MongoConnector, error) {
	opts, err := defaultMongoConnectorOpts()
	if err != nil {
		return nil, err
	}
	return NewMongoConnector(opts)
}

// defaultMongoConnectorOpts reads MONGO_URI (default mongodb://localhost:27017).
// The database is MONGO_DATABASE, else the one in the URI, else "test".
func defaultMongoConnectorOpts() (MongoConnectorOpts, error) {
	uri := helpers.GetEnv("MONGO_URI", "mongodb://localhost:27017")

	parsed, err := connstring.Parse(uri)
	if err != nil {
		return MongoConnectorOpts{}, errors.WrapPrefix(err, "invalid MONGO_URI", 0)
	}

	database := parsed.Database
	if database == "" {
		database = "test"
	}

	return MongoConnectorOpts{
		Name:     "mongodb",
		Database: helpers.GetEnv("MONGO_DATABASE", database),
		URI:      uri,
	}, nil
}

func (c *MongoConnector) Database() (*mongo.Database, error) {
	if c == nil || c.client == nil {
		return nil, http_errors.InternalServerErrorWithCode(MONGO_CLIENT_NOT_INITIALIZED, "mongo client not initialized")
	}
	return c.client.Database(c.database), nil
}

func (c *MongoConnector) Ping() error {
	if c.client == nil {
		return http_errors.InternalServerErrorWithCode(MONGO_CLIENT_NOT_INITIALIZED, "mongo client not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return mapMongoError(c.client.Ping(ctx, nil))
}

func (c *MongoConnector) Disconnect() error {
	if c.client == nil {
		return http_errors.InternalServerErrorWithCode(MONGO_CLIENT_NOT_INITIALIZED, "mongo client not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return mapMongoError(c.client.Disconnect(ctx))
}

// GetDriver returns the *mongo.Client.
func (c *MongoConnector) GetDriver() any {
	return c.client
}

func (c *MongoConnector) GetName() string {
	return c.name
}

func (c *MongoConnector) GetDatabaseName() string {
	return c.database
}
