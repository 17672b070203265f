package journal

import (
	"encoding/csv"
	"os"
	"strconv"
)

// CSV writes rounds and traces to two CSV files, one row per record.
type CSV struct {
	rounds *csv.Writer
	traces *csv.Writer
	rf, tf *os.File
}

var roundHeader = []string{
	"run_id", "generation", "episode", "round",
	"cedent_id", "reinsurer_id", "treaty_type",
	"premium", "attachment_point", "limit", "quota_share",
	"accepted", "observed_loss_ratio", "cvar_95",
}

var traceHeader = []string{
	"run_id", "round", "agent_id", "treaty_id",
	"loss_ratio_prior", "exposure", "competitor_mean",
	"premium", "quota_share", "cvar", "lambda", "alert",
}

// NewCSV creates the two files and writes their headers.
func NewCSV(roundsPath, tracesPath string) (*CSV, error) {
	rf, err := os.Create(roundsPath)
	if err != nil {
		return nil, err
	}
	tf, err := os.Create(tracesPath)
	if err != nil {
		rf.Close()
		return nil, err
	}

	j := &CSV{
		rounds: csv.NewWriter(rf),
		traces: csv.NewWriter(tf),
		rf:     rf,
		tf:     tf,
	}

	if err := j.writeHeaders(); err != nil {
		rf.Close()
		tf.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSV) writeHeaders() error {
	if err := j.rounds.Write(roundHeader); err != nil {
		return err
	}
	if err := j.traces.Write(traceHeader); err != nil {
		return err
	}
	j.rounds.Flush()
	if err := j.rounds.Error(); err != nil {
		return err
	}
	j.traces.Flush()
	return j.traces.Error()
}

func (j *CSV) RecordRound(r RoundRecord) error {
	err := j.rounds.Write([]string{
		r.RunID,
		strconv.Itoa(r.Generation),
		strconv.Itoa(r.Episode),
		strconv.Itoa(r.Round),
		r.CedentID,
		r.ReinsurerID,
		r.TreatyType,
		f(r.Premium),
		f(r.AttachmentPoint),
		f(r.Limit),
		f(r.QuotaShare),
		strconv.FormatBool(r.Accepted),
		f(r.ObservedLossRatio),
		f(r.CVaR95),
	})
	if err != nil {
		return err
	}
	j.rounds.Flush()
	return j.rounds.Error()
}

func (j *CSV) RecordTrace(t TraceRecord) error {
	err := j.traces.Write([]string{
		t.RunID,
		strconv.Itoa(t.Round),
		t.AgentID,
		t.TreatyID,
		f(t.LossRatioPrior),
		f(t.Exposure),
		f(t.CompetitorMean),
		f(t.Premium),
		f(t.QuotaShare),
		f(t.CVaR),
		f(t.Lambda),
		strconv.FormatBool(t.Alert),
	})
	if err != nil {
		return err
	}
	j.traces.Flush()
	return j.traces.Error()
}

func (j *CSV) Close() error {
	j.rounds.Flush()
	if err := j.rounds.Error(); err != nil {
		return err
	}
	j.traces.Flush()
	if err := j.traces.Error(); err != nil {
		return err
	}
	if err := j.rf.Close(); err != nil {
		return err
	}
	return j.tf.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
