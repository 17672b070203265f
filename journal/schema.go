package journal

const Schema = `
CREATE TABLE IF NOT EXISTS rounds (
	run_id TEXT NOT NULL,
	generation INTEGER NOT NULL,
	episode INTEGER NOT NULL,
	round INTEGER NOT NULL,
	cedent_id TEXT NOT NULL,
	reinsurer_id TEXT NOT NULL,
	treaty_type TEXT NOT NULL,
	premium REAL NOT NULL,
	attachment_point REAL NOT NULL,
	"limit" REAL NOT NULL,
	quota_share REAL NOT NULL,
	accepted INTEGER NOT NULL,
	observed_loss_ratio REAL NOT NULL,
	cvar_95 REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS traces (
	run_id TEXT NOT NULL,
	round INTEGER NOT NULL,
	agent_id TEXT NOT NULL,
	treaty_id TEXT NOT NULL,
	loss_ratio_prior REAL NOT NULL,
	exposure REAL NOT NULL,
	competitor_mean REAL NOT NULL,
	premium REAL NOT NULL,
	quota_share REAL NOT NULL,
	cvar REAL NOT NULL,
	lambda REAL NOT NULL,
	alert INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rounds_run ON rounds(run_id, round);
CREATE INDEX IF NOT EXISTS idx_traces_run ON traces(run_id, round);
`
