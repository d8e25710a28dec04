// Package blob stores raw dataset files and report artifacts. The S3
// backend is the production path; the filesystem backend serves local
// runs and tests.
package blob

import "context"

// Storage is the artifact store for uploaded datasets and generated
// report JSON. Keys are slash-separated paths scoped by project.
type Storage interface {
	// Upload writes data under key, overwriting any existing object.
	Upload(ctx context.Context, key string, data []byte, contentType string) error

	// Download returns the object's bytes.
	Download(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// DatasetKey is the canonical blob key for an uploaded dataset file.
func DatasetKey(projectID, datasetID, filename string) string {
	return "datasets/" + projectID + "/" + datasetID + "/" + filename
}

// ReportKey is the canonical blob key for a report artifact.
func ReportKey(projectID, reportID string) string {
	return "reports/" + projectID + "/" + reportID + ".json"
}
