package database

import (
	"time"
)

// ObjectDocument is the stored metadata of one object's template set
type ObjectDocument struct {
	DocumentID  string    `db:"document_id" json:"document_id"`
	ObjectID    string    `db:"object_id" json:"object_id"`
	Description string    `db:"description" json:"description,omitempty"`
	Templates   int       `json:"templates"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
