package migrations

func migration002RunStages() Migration {
	return Migration{
		Version:     2,
		Description: "Per-stage timing of build runs",
		Statements: []string{
			`CREATE TABLE build_run_stages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				name TEXT NOT NULL,
				status TEXT NOT NULL,
				started_at DATETIME NOT NULL,
				completed_at DATETIME,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				FOREIGN KEY (run_id) REFERENCES build_runs(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX idx_build_run_stages_run_id ON build_run_stages(run_id)`,
		},
	}
}
