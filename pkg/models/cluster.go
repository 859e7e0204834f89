// Package models defines the domain models of the pipeline run orchestrator.
package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Cluster is a remote workflow-execution environment.
type Cluster struct {
	ID           string     `json:"id"                       yaml:"id"`
	Name         string     `json:"name"                     yaml:"name"      validate:"required"`
	URL          string     `json:"url"                      yaml:"url"       validate:"required,url"`
	Username     string     `json:"username"                 yaml:"username"`
	Password     string     `json:"-"                        yaml:"password"`
	AutoSync     bool       `json:"auto_sync"                yaml:"auto_sync"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty" yaml:"-"`
	CreatedAt    time.Time  `json:"created_at"               yaml:"-"`
	UpdatedAt    time.Time  `json:"updated_at"               yaml:"-"`
}

// Validate checks the fields an administrator must provide.
func (c *Cluster) Validate() error {
	return validate.Struct(c)
}
