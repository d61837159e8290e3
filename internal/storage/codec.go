package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/models"
)

// HabitDocument is the persisted shape of a habit in document stores.
// Every read and write path goes through ToDocument and Record so the
// key names cannot drift apart.
type HabitDocument struct {
	SchemaVersion  int     `json:"schema_version"`
	HabitID        string  `json:"habit_id"`
	UserID         string  `json:"user_id"`
	Title          string  `json:"title"`
	Recurrence     string  `json:"recurrence"`
	ReminderTime   string  `json:"reminder_time,omitempty"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
	DeletedAt      *int64  `json:"deleted_at,omitempty"`
	CompletedDates []int64 `json:"completed_dates"`
}

// ToDocument converts a record into its document form.
func ToDocument(r models.HabitRecord) HabitDocument {
	days := models.NormalizeDays(r.CompletedDates)
	completed := make([]int64, len(days))
	for i, d := range days {
		completed[i] = int64(d)
	}

	doc := HabitDocument{
		SchemaVersion:  constants.DocumentSchemaVersion,
		HabitID:        r.ID,
		UserID:         r.UserID,
		Title:          r.Title,
		Recurrence:     string(r.Recurrence),
		ReminderTime:   r.ReminderTime,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		CompletedDates: completed,
	}
	if r.DeletedAt != nil {
		ts := *r.DeletedAt
		doc.DeletedAt = &ts
	}
	return doc
}

// Record converts a document back into a validated record.
func (d HabitDocument) Record() (models.HabitRecord, error) {
	if d.SchemaVersion != constants.DocumentSchemaVersion {
		return models.HabitRecord{}, fmt.Errorf("unsupported habit document schema version %d", d.SchemaVersion)
	}

	days := make([]models.EpochDay, len(d.CompletedDates))
	for i, day := range d.CompletedDates {
		days[i] = models.EpochDay(day)
	}

	r := models.HabitRecord{
		ID:             d.HabitID,
		UserID:         d.UserID,
		Title:          d.Title,
		Recurrence:     models.Recurrence(d.Recurrence),
		ReminderTime:   d.ReminderTime,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		CompletedDates: days,
	}
	if d.DeletedAt != nil {
		ts := *d.DeletedAt
		r.DeletedAt = &ts
	}
	if err := r.Validate(); err != nil {
		return models.HabitRecord{}, err
	}
	return r, nil
}

// EncodeDocument validates r and encodes it as JSON.
func EncodeDocument(r models.HabitRecord) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(ToDocument(r))
	if err != nil {
		return nil, fmt.Errorf("failed to encode habit %s: %w", r.ID, err)
	}
	return data, nil
}

// DecodeDocument decodes a JSON habit document, rejecting unknown fields.
func DecodeDocument(data []byte) (models.HabitRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc HabitDocument
	if err := dec.Decode(&doc); err != nil {
		return models.HabitRecord{}, fmt.Errorf("failed to decode habit document: %w", err)
	}
	return doc.Record()
}
