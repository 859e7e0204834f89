package models

import "fmt"

// SyncResult summarises one reconciliation pass.
type SyncResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Identical int `json:"identical"`
	Orphaned  int `json:"orphaned"`
}

func (r SyncResult) Add(other SyncResult) SyncResult {
	return SyncResult{
		Created:   r.Created + other.Created,
		Updated:   r.Updated + other.Updated,
		Identical: r.Identical + other.Identical,
		Orphaned:  r.Orphaned + other.Orphaned,
	}
}

func (r SyncResult) Equal(other SyncResult) bool {
	return r == other
}

func (r SyncResult) String() string {
	return fmt.Sprintf("created=%d updated=%d identical=%d orphaned=%d", r.Created, r.Updated, r.Identical, r.Orphaned)
}
