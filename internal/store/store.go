// Package store defines the external key-value collaborator that holds
// undeliverable messages and durable channel metadata.
package store

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courier-im/courier/internal/store/memory"
	"github.com/courier-im/courier/internal/store/sqlite"
)

// Store is the offline persistence contract: put with an optional TTL,
// enumerate by key prefix, and delete. Fields are a flat string-to-string
// mapping; stored messages carry at least from, content, and secret.
type Store interface {
	Put(key string, fields map[string]string, ttl time.Duration) error
	GetAllWithPrefix(prefix string) (map[string]map[string]string, error)
	Delete(key string) error
	Close() error
}

// GetStore selects a backend from the STORAGE_TYPE environment variable.
// Unset or unknown values fall back to the in-memory store.
func GetStore() Store {
	storageType := os.Getenv("STORAGE_TYPE")
	var store Store

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "courier.db" // Default filename
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
