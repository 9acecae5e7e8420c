package database

import (
	"github.com/go-errors/errors"
)

var errNilDatasource = errors.New("datasource is nil")

// Connector is a connection to a database server, e.g. *MongoConnector.
type Connector interface {
	Ping() error
	Disconnect() error
	GetName() string
	GetDatabaseName() string
	GetDriver() any
}

type modelEntry struct {
	model      IModel
	connector  Connector
	repository any
}

// Datasource holds the connectors, models and repositories of an application.
// Relations use it to find the repository of the related model. Models and
// repositories are keyed by model name.
type Datasource struct {
	connectors map[string]Connector
	models     map[string]*modelEntry
}

func (ds *Datasource) AddConnector(connector Connector) error {
	if ds == nil {
		return errNilDatasource
	}
	if connector == nil {
		return errors.New("connector cannot be nil")
	}

	if ds.connectors == nil {
		ds.connectors = map[string]Connector{}
	}
	ds.connectors[connector.GetName()] = connector
	return nil
}

// Destroy disconnects every connector, logging the failures.
func (ds *Datasource) Destroy() {
	if ds == nil {
		return
	}

	for name, connector := range ds.connectors {
		if err := connector.Disconnect(); err != nil {
			logger.Warnf("disconnecting %s: %v", name, err)
		}
	}
}

// RegisterModel binds model to the connector it names. A model registers once.
func (ds *Datasource) RegisterModel(model IModel) error {
	if ds == nil {
		return errNilDatasource
	}

	connector, err := ds.GetConnector(model.GetConnectorName())
	if err != nil {
		return err
	}

	name := model.GetModelName()
	if entry, ok := ds.models[name]; ok {
		return errors.Errorf("the model %s is already registered with connector %s", name, entry.connector.GetName())
	}

	if ds.models == nil {
		ds.models = map[string]*modelEntry{}
	}
	ds.models[name] = &modelEntry{model: model, connector: connector}
	return nil
}

func (ds *Datasource) entry(modelName string) (*modelEntry, error) {
	if ds == nil {
		return nil, errNilDatasource
	}

	entry, ok := ds.models[modelName]
	if !ok {
		return nil, errors.Errorf("the model %s is not registered", modelName)
	}
	return entry, nil
}

func (ds *Datasource) GetModel(modelName string) (IModel, error) {
	entry, err := ds.entry(modelName)
	if err != nil {
		return nil, err
	}
	return entry.model, nil
}

func (ds *Datasource) GetModelConnector(model IModel) (Connector, error) {
	entry, err := ds.entry(model.GetModelName())
	if err != nil {
		return nil, err
	}
	return entry.connector, nil
}

func (ds *Datasource) GetConnector(name string) (Connector, error) {
	if ds == nil {
		return nil, errNilDatasource
	}

	connector, ok := ds.connectors[name]
	if !ok {
		return nil, errors.Errorf("the connector %s is not registered", name)
	}
	return connector, nil
}

// GetRepository returns the repository registered for the model. Callers
// assert it to the Repository[T] or RelationQuery[T] they need.
func (ds *Datasource) GetRepository(modelName string) (any, error) {
	entry, err := ds.entry(modelName)
	if err != nil {
		return nil, err
	}
	if entry.repository == nil {
		return nil, errors.Errorf("no repository is registered for model %s", modelName)
	}
	return entry.repository, nil
}

// RegisterDatasourceRepository stores repository for a registered model. The
// repository must use the connector the model was registered with.
func RegisterDatasourceRepository[T IModel](ds *Datasource, model T, repository Repository[T]) error {
	if repository == nil {
		return errors.New("repository cannot be nil")
	}

	name := model.GetModelName()
	entry, err := ds.entry(name)
	if err != nil {
		return err
	}

	switch {
	case entry.repository != nil:
		return errors.Errorf("a repository is already registered for model %s", name)
	case repository.GetConnector() != entry.connector:
		return errors.Errorf("the repository for model %s does not use connector %s", name, entry.connector.GetName())
	}

	entry.repository = repository
	return nil
}

func GetDatasourceModelRepository[T IModel](ds *Datasource, model T) (Repository[T], error) {
	registered, err := ds.GetRepository(model.GetModelName())
	if err != nil {
		return nil, err
	}

	repository, ok := registered.(Repository[T])
	if !ok {
		return nil, errors.Errorf("the repository for model %s is not of the expected type", model.GetModelName())
	}
	return repository, nil
}
