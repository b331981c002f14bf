package models

import (
	"encoding/json"
	"time"
)

// Document is the stored value of one store path.
type Document struct {
	Path      string          `json:"path"`
	Body      json.RawMessage `json:"body"`    // JSON value, never empty once saved
	Version   int64           `json:"version"` // bumped on every write, 0 = never written
	UpdatedAt time.Time       `json:"updated_at"`
}
