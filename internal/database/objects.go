package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jordanella.com/linemod/internal/cv"
)

// SaveObject stores a complete template set as a new document
func (db *DB) SaveObject(set cv.ObjectSet, description string) (*ObjectDocument, error) {
	n := set.Len()
	if len(set.Depths) != n || len(set.Masks) != n || len(set.Rotations) != n || len(set.Translations) != n {
		return nil, fmt.Errorf("%w: %q has %d images, %d depths, %d masks, %d rotations, %d translations",
			ErrInconsistentObject, set.ObjectID, n, len(set.Depths), len(set.Masks), len(set.Rotations), len(set.Translations))
	}

	doc := &ObjectDocument{
		DocumentID:  uuid.NewString(),
		ObjectID:    set.ObjectID,
		Description: description,
		Templates:   n,
		CreatedAt:   time.Now(),
	}

	err := db.ExecTx(func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRow(`SELECT COUNT(*) > 0 FROM objects WHERE object_id = ?`, set.ObjectID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %q", ErrDuplicateObject, set.ObjectID)
		}

		if _, err := tx.Exec(`
			INSERT INTO objects (document_id, object_id, description, created_at)
			VALUES (?, ?, ?, ?)
		`, doc.DocumentID, doc.ObjectID, doc.Description, doc.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert object: %w", err)
		}

		for i := 0; i < n; i++ {
			row, err := encodeTemplate(set, i)
			if err != nil {
				return fmt.Errorf("template %d: %w", i, err)
			}
			if _, err := tx.Exec(`
				INSERT INTO templates (document_id, template_index, image, depth, mask, rotation, translation)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, doc.DocumentID, i, row[0], row[1], row[2], row[3], row[4]); err != nil {
				return fmt.Errorf("failed to insert template %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	db.logger.InfoWithContext("saved object", map[string]interface{}{
		"object_id":   doc.ObjectID,
		"document_id": doc.DocumentID,
		"templates":   n,
	})
	return doc, nil
}

func encodeTemplate(set cv.ObjectSet, i int) ([5][]byte, error) {
	var row [5][]byte
	var err error
	if set.Images[i] == nil || set.Depths[i] == nil || set.Masks[i] == nil ||
		set.Rotations[i] == nil || set.Translations[i] == nil {
		return row, fmt.Errorf("%w: missing attachment", ErrInconsistentObject)
	}
	if row[0], err = encodeColor(set.Images[i]); err != nil {
		return row, err
	}
	if row[1], err = encodeDepth(set.Depths[i]); err != nil {
		return row, err
	}
	if row[2], err = encodeMask(set.Masks[i]); err != nil {
		return row, err
	}
	if row[3], err = encodeRotation(set.Rotations[i]); err != nil {
		return row, err
	}
	if row[4], err = encodeTranslation(set.Translations[i]); err != nil {
		return row, err
	}
	return row, nil
}

// GetObject returns the document metadata for objectID
func (db *DB) GetObject(objectID string) (*ObjectDocument, error) {
	doc := &ObjectDocument{}
	var description sql.NullString
	err := db.conn.QueryRow(`
		SELECT o.document_id, o.object_id, o.description, o.created_at,
			(SELECT COUNT(*) FROM templates t WHERE t.document_id = o.document_id)
		FROM objects o
		WHERE o.object_id = ?
	`, objectID).Scan(&doc.DocumentID, &doc.ObjectID, &description, &doc.CreatedAt, &doc.Templates)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrObjectNotFound, objectID)
	}
	if err != nil {
		return nil, err
	}
	doc.Description = description.String
	return doc, nil
}

// ListObjects returns every document in the order it was saved
func (db *DB) ListObjects() ([]*ObjectDocument, error) {
	rows, err := db.conn.Query(`
		SELECT o.document_id, o.object_id, o.description, o.created_at,
			(SELECT COUNT(*) FROM templates t WHERE t.document_id = o.document_id)
		FROM objects o
		ORDER BY o.seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*ObjectDocument{}
	for rows.Next() {
		doc := &ObjectDocument{}
		var description sql.NullString
		if err := rows.Scan(&doc.DocumentID, &doc.ObjectID, &description, &doc.CreatedAt, &doc.Templates); err != nil {
			return nil, err
		}
		doc.Description = description.String
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// LoadObject decodes the full template set of objectID
func (db *DB) LoadObject(objectID string) (cv.ObjectSet, error) {
	doc, err := db.GetObject(objectID)
	if err != nil {
		return cv.ObjectSet{}, err
	}

	rows, err := db.conn.Query(`
		SELECT template_index, image, depth, mask, rotation, translation
		FROM templates
		WHERE document_id = ?
		ORDER BY template_index
	`, doc.DocumentID)
	if err != nil {
		return cv.ObjectSet{}, err
	}
	defer rows.Close()

	set := cv.ObjectSet{ObjectID: doc.ObjectID}
	for rows.Next() {
		var index int
		var image, depth, mask, rotation, translation []byte
		if err := rows.Scan(&index, &image, &depth, &mask, &rotation, &translation); err != nil {
			return cv.ObjectSet{}, err
		}
		if index != set.Len() {
			return cv.ObjectSet{}, fmt.Errorf("%w: %q is missing template %d", ErrCorruptAttachment, objectID, set.Len())
		}

		color, err := decodeColor(image)
		if err != nil {
			return cv.ObjectSet{}, fmt.Errorf("template %d image: %w", index, err)
		}
		d, err := decodeDepth(depth)
		if err != nil {
			return cv.ObjectSet{}, fmt.Errorf("template %d depth: %w", index, err)
		}
		m, err := decodeMask(mask)
		if err != nil {
			return cv.ObjectSet{}, fmt.Errorf("template %d mask: %w", index, err)
		}
		r, err := decodeRotation(rotation)
		if err != nil {
			return cv.ObjectSet{}, fmt.Errorf("template %d rotation: %w", index, err)
		}
		t, err := decodeTranslation(translation)
		if err != nil {
			return cv.ObjectSet{}, fmt.Errorf("template %d translation: %w", index, err)
		}

		set.Images = append(set.Images, color)
		set.Depths = append(set.Depths, d)
		set.Masks = append(set.Masks, m)
		set.Rotations = append(set.Rotations, r)
		set.Translations = append(set.Translations, t)
	}
	return set, rows.Err()
}

// ObjectSets loads every stored object in save order
func (db *DB) ObjectSets() ([]cv.ObjectSet, error) {
	docs, err := db.ListObjects()
	if err != nil {
		return nil, err
	}
	sets := make([]cv.ObjectSet, 0, len(docs))
	for _, doc := range docs {
		set, err := db.LoadObject(doc.ObjectID)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// DeleteObject removes objectID and its templates
func (db *DB) DeleteObject(objectID string) error {
	return db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`DELETE FROM objects WHERE object_id = ?`, objectID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %q", ErrObjectNotFound, objectID)
		}
		return nil
	})
}
