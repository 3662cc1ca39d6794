package migrations

func migration001BuildRuns() Migration {
	return Migration{
		Version:     1,
		Description: "Build run history",
		Statements: []string{
			`CREATE TABLE build_runs (
				id TEXT PRIMARY KEY,
				board TEXT NOT NULL,
				platform TEXT NOT NULL,
				device TEXT NOT NULL,
				profile TEXT NOT NULL,
				command TEXT NOT NULL,
				current_stage TEXT,
				status TEXT NOT NULL DEFAULT 'running',
				version TEXT,
				archive_path TEXT,
				checksum TEXT,
				error_message TEXT,
				exit_code INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				completed_at DATETIME
			)`,
			`CREATE INDEX idx_build_runs_created_at ON build_runs(created_at)`,
			`CREATE INDEX idx_build_runs_status ON build_runs(status)`,
		},
	}
}
