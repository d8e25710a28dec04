// Package queue carries job messages between the API surface and the
// worker. Delivery is at least once; consumers must tolerate duplicates
// and must explicitly delete what they have handled.
package queue

import (
	"context"
	"time"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

// Delivery is one received message plus the receipt needed to delete it.
type Delivery struct {
	Receipt string
	Message model.JobMessage
}

// Queue is the job transport. Receive blocks up to wait for messages and
// may return fewer than max, including none.
type Queue interface {
	Enqueue(ctx context.Context, msg model.JobMessage) error
	Receive(ctx context.Context, max int, wait time.Duration) ([]Delivery, error)
	Delete(ctx context.Context, receipt string) error
}
