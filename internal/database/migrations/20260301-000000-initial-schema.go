package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260301-000000",
		Description: "Discovery runs, seller runs and site analysis cache",
		Up: []string{
			// Candidates and counters live in data; the scalar columns exist for filtering.
			`CREATE TABLE IF NOT EXISTS discovery_runs (
				id TEXT PRIMARY KEY,
				owner TEXT NOT NULL,
				seed_reference TEXT NOT NULL,
				search_query TEXT NOT NULL,
				status TEXT NOT NULL,
				data TEXT NOT NULL,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_discovery_runs_owner ON discovery_runs(owner, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_discovery_runs_status ON discovery_runs(status)`,
			`CREATE INDEX IF NOT EXISTS idx_discovery_runs_seed ON discovery_runs(seed_reference, status, created_at DESC)`,

			`CREATE TABLE IF NOT EXISTS seller_runs (
				id TEXT PRIMARY KEY,
				owner TEXT NOT NULL,
				source_url TEXT NOT NULL,
				marketplace TEXT NOT NULL,
				status TEXT NOT NULL,
				data TEXT NOT NULL,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_seller_runs_owner ON seller_runs(owner, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_seller_runs_status ON seller_runs(status)`,

			`CREATE TABLE IF NOT EXISTS site_analyses (
				id TEXT PRIMARY KEY,
				domain_key TEXT NOT NULL UNIQUE,
				url TEXT NOT NULL,
				metrics TEXT NOT NULL,
				analyzed_at TEXT NOT NULL
			)`,
		},
	})
}
