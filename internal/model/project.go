package model

import (
	"time"

	"github.com/google/uuid"
)

// Project owns datasets, jobs, KPIs and reports. Entities reference it by
// id only; nothing is embedded.
type Project struct {
	ID                  string    `json:"project_id"`
	Name                string    `json:"name"`
	BusinessDescription string    `json:"business_description"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewProject creates an active project.
func NewProject(name, businessDescription string) Project {
	return Project{
		ID:                  uuid.New().String(),
		Name:                name,
		BusinessDescription: businessDescription,
		Status:              "active",
		CreatedAt:           time.Now().UTC(),
	}
}
