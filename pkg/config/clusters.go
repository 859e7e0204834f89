// Package config loads the cluster registrations file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dukex/orchestrator/pkg/models"
	"gopkg.in/yaml.v3"
)

var ErrNoClusters = errors.New("cluster file declares no clusters")

// ClusterFile is the layout of a cluster registrations file:
//
//	clusters:
//	  - name: prod
//	    url: https://airflow.example.com/api/v1
//	    username: admin
//	    password: ${AIRFLOW_PASSWORD}
//	    auto_sync: true
type ClusterFile struct {
	Clusters []*models.Cluster `yaml:"clusters"`
}

// LoadClusters reads a cluster file. Environment references such as
// ${AIRFLOW_PASSWORD} are expanded before parsing.
func LoadClusters(path string) ([]*models.Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster file %s: %w", path, err)
	}

	var file ClusterFile

	err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cluster file %s: %w", path, err)
	}

	if len(file.Clusters) == 0 {
		return nil, ErrNoClusters
	}

	return file.Clusters, nil
}
