package journal

import "fmt"

const roundColumns = `run_id, generation, episode, round, cedent_id, reinsurer_id, treaty_type,
	premium, attachment_point, "limit", quota_share, accepted, observed_loss_ratio, cvar_95`

// ListRounds returns all rounds for a run, ordered by round index.
func (j *SQLite) ListRounds(runID string) ([]RoundRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+roundColumns+`
		FROM rounds
		WHERE run_id = ?
		ORDER BY round ASC, episode ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		var r RoundRecord
		if err := rows.Scan(
			&r.RunID, &r.Generation, &r.Episode, &r.Round,
			&r.CedentID, &r.ReinsurerID, &r.TreatyType,
			&r.Premium, &r.AttachmentPoint, &r.Limit, &r.QuotaShare,
			&r.Accepted, &r.ObservedLossRatio, &r.CVaR95,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRuns returns the distinct run IDs present in the journal, most
// recent first (run IDs are time-sortable ULIDs).
func (j *SQLite) ListRuns() ([]string, error) {
	rows, err := j.db.Query(`SELECT DISTINCT run_id FROM rounds ORDER BY run_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RunSummary aggregates a run's rounds for quick inspection.
type RunSummary struct {
	RunID        string
	Rounds       int
	Accepted     int
	MeanPremium  float64
	MeanCVaR     float64
}

// SummarizeRun computes acceptance and pricing aggregates for one run.
func (j *SQLite) SummarizeRun(runID string) (RunSummary, error) {
	row := j.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(accepted), 0),
		       COALESCE(AVG(CASE WHEN accepted THEN premium END), 0),
		       COALESCE(AVG(CASE WHEN accepted THEN cvar_95 END), 0)
		FROM rounds
		WHERE run_id = ?`, runID)

	s := RunSummary{RunID: runID}
	if err := row.Scan(&s.Rounds, &s.Accepted, &s.MeanPremium, &s.MeanCVaR); err != nil {
		return RunSummary{}, err
	}
	if s.Rounds == 0 {
		return RunSummary{}, fmt.Errorf("run %q not found", runID)
	}
	return s, nil
}

// ListTraces returns the policy trace for a run, optionally filtered to a
// single agent (empty agentID means all agents).
func (j *SQLite) ListTraces(runID, agentID string) ([]TraceRecord, error) {
	q := `
		SELECT run_id, round, agent_id, treaty_id, loss_ratio_prior, exposure,
		       competitor_mean, premium, quota_share, cvar, lambda, alert
		FROM traces
		WHERE run_id = ?`
	args := []any{runID}
	if agentID != "" {
		q += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	q += ` ORDER BY round ASC, agent_id ASC`

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TraceRecord
	for rows.Next() {
		var t TraceRecord
		if err := rows.Scan(
			&t.RunID, &t.Round, &t.AgentID, &t.TreatyID,
			&t.LossRatioPrior, &t.Exposure, &t.CompetitorMean,
			&t.Premium, &t.QuotaShare, &t.CVaR, &t.Lambda, &t.Alert,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
