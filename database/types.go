package database

import (
	"time"

	"github.com/go-errors/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// IModel is implemented by every document type stored through a repository.
// Implement it on the value receiver so both T and *T satisfy it.
type IModel interface {
	GetTableName() string
	GetModelName() string
	GetConnectorName() string
	GetId() any
}

// IncrementingModel is implemented by models whose primary key is an
// auto-incrementing number instead of an ObjectID.
type IncrementingModel interface {
	IsIncrementing() bool
}

// MongoDate reads dates stored as BSON DateTime, int64 milliseconds or int32
// seconds since epoch. It is always written as a DateTime.
type MongoDate struct {
	time.Time
}

const dateFormat = "2006-01-02T15:04:05.000Z"

func (date *MongoDate) UnmarshalBSONValue(t byte, data []byte) error {
	value := bson.RawValue{Type: bson.Type(t), Value: data}

	if milliseconds, ok := value.DateTimeOK(); ok {
		date.Time = time.UnixMilli(milliseconds)
		return nil
	}
	if milliseconds, ok := value.Int64OK(); ok {
		date.Time = time.UnixMilli(milliseconds)
		return nil
	}
	if seconds, ok := value.Int32OK(); ok {
		date.Time = time.Unix(int64(seconds), 0)
		return nil
	}

	return errors.Errorf("cannot unmarshal %v into MongoDate", value.Type)
}

func (date MongoDate) MarshalBSONValue() (byte, []byte, error) {
	t, data, err := bson.MarshalValue(bson.NewDateTimeFromTime(date.Time))
	return byte(t), data, err
}

func (date MongoDate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + date.Time.UTC().Format(dateFormat) + `"`), nil
}
