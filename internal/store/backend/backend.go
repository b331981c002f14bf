// Package backend builds the configured store driver.
package backend

import (
	"fmt"

	"smart_bottle/internal/config"
	"smart_bottle/internal/repository/db"
	"smart_bottle/internal/store"
	"smart_bottle/internal/store/firebase"
	"smart_bottle/internal/store/memory"
	"smart_bottle/internal/store/mqttstore"
	"smart_bottle/internal/store/sqlitestore"
)

// Open returns a ready store for cfg.Driver. Network drivers may dial.
func Open(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverFirebase:
		opts := []firebase.Option{firebase.WithRetry(cfg.Firebase.Retry)}
		if cfg.Firebase.Auth != "" {
			opts = append(opts, firebase.WithAuth(cfg.Firebase.Auth))
		}
		c, err := firebase.New(cfg.Firebase.URL, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil

	case config.DriverMQTT:
		s, err := mqttstore.Dial(mqttstore.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      cfg.MQTT.QoS,
			Timeout:  cfg.MQTT.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.DriverSQLite:
		conn, err := db.InitDB(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return sqlitestore.Open(conn, cfg.SQLite.Poll), nil

	case config.DriverMemory:
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
