package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite persists rounds and traces to a SQLite database using the schema
// in schema.go.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordRound(r RoundRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO rounds
		(run_id, generation, episode, round, cedent_id, reinsurer_id, treaty_type,
		 premium, attachment_point, "limit", quota_share, accepted, observed_loss_ratio, cvar_95)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Generation, r.Episode, r.Round, r.CedentID, r.ReinsurerID, r.TreatyType,
		r.Premium, r.AttachmentPoint, r.Limit, r.QuotaShare, r.Accepted, r.ObservedLossRatio, r.CVaR95,
	)
	return err
}

func (j *SQLite) RecordTrace(t TraceRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO traces
		(run_id, round, agent_id, treaty_id, loss_ratio_prior, exposure,
		 competitor_mean, premium, quota_share, cvar, lambda, alert)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.Round, t.AgentID, t.TreatyID, t.LossRatioPrior, t.Exposure,
		t.CompetitorMean, t.Premium, t.QuotaShare, t.CVaR, t.Lambda, t.Alert,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
