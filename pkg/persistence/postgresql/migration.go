package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE clusters (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				url TEXT NOT NULL,
				username VARCHAR(255) NOT NULL DEFAULT '',
				password TEXT NOT NULL DEFAULT '',
				auto_sync BOOLEAN NOT NULL DEFAULT false,
				last_synced_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE definitions (
				id VARCHAR(255) PRIMARY KEY,
				cluster_id VARCHAR(255) NOT NULL REFERENCES clusters(id) ON DELETE CASCADE,
				external_id VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				schedule VARCHAR(255),
				config JSONB,
				sample_config JSONB,
				paused BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (cluster_id, external_id)
			);

			CREATE INDEX idx_definitions_cluster_id ON definitions(cluster_id);
		`,
		2: `
			CREATE TABLE runs (
				id VARCHAR(255) PRIMARY KEY,
				definition_id VARCHAR(255) NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
				external_id VARCHAR(255) NOT NULL,
				execution_date TIMESTAMP WITH TIME ZONE NOT NULL,
				state VARCHAR(50) NOT NULL CHECK (state IN ('queued', 'running', 'success', 'failed')),
				conf JSONB,
				webhook_token VARCHAR(255) UNIQUE,
				messages JSONB NOT NULL DEFAULT '[]',
				progress INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
				last_refreshed_at TIMESTAMP WITH TIME ZONE,
				favorite_label VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (definition_id, external_id)
			);

			CREATE INDEX idx_runs_definition_id ON runs(definition_id);
			CREATE INDEX idx_runs_execution_date ON runs(execution_date);
		`,
	}
}
