package model

import (
	"time"

	"github.com/google/uuid"
)

// ColumnProfile describes one column of an uploaded dataset: inferred
// type, missingness, cardinality and the date/id signals the proposal
// prompt relies on.
type ColumnProfile struct {
	Name         string   `json:"name"`
	DType        string   `json:"dtype"` // "number" or "text"
	NullCount    int      `json:"null_count"`
	NullPct      float64  `json:"null_pct"`
	UniqueCount  int      `json:"unique_count"`
	SampleValues []any    `json:"sample_values"`
	IsDate       bool     `json:"is_date"`
	IsID         bool     `json:"is_id"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Mean         *float64 `json:"mean,omitempty"`
}

// DatasetProfile is the structural summary of a dataset.
type DatasetProfile struct {
	RowCount          int             `json:"row_count"`
	ColumnCount       int             `json:"column_count"`
	Columns           []ColumnProfile `json:"columns"`
	DateColumns       []string        `json:"date_columns"`
	PotentialJoinKeys []string        `json:"potential_join_keys"`
}

// Dataset is one uploaded tabular file, stored in blob storage under
// BlobKey and profiled by the profile stage.
type Dataset struct {
	ID        string          `json:"dataset_id"`
	ProjectID string          `json:"project_id"`
	Filename  string          `json:"filename"`
	BlobKey   string          `json:"blob_key"`
	Profile   *DatasetProfile `json:"profile,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewDataset creates a dataset record pointing at an uploaded blob.
func NewDataset(projectID, filename, blobKey string) Dataset {
	return Dataset{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Filename:  filename,
		BlobKey:   blobKey,
		CreatedAt: time.Now().UTC(),
	}
}
