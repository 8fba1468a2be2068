package evaluation

import (
	"gonum.org/v1/gonum/stat"
)

// Score holds the metrics of one trajectory.
type Score struct {
	NavError         float64 `json:"nav_error"`
	OracleError      float64 `json:"oracle_error"`
	ActionSteps      int     `json:"action_steps"`
	TrajectorySteps  int     `json:"trajectory_steps"`
	TrajectoryLength float64 `json:"trajectory_lengths"`
	Success          float64 `json:"success"`
	OracleSuccess    float64 `json:"oracle_success"`
	SPL              float64 `json:"spl"`
	DTW              float64 `json:"DTW"`
	NDTW             float64 `json:"nDTW"`
	SDTW             float64 `json:"SDTW"`
	CLS              float64 `json:"CLS"`
}

// MetricNames lists the per-item metric names in report order.
var MetricNames = []string{
	"action_steps", "trajectory_steps", "trajectory_lengths",
	"nav_error", "oracle_error", "success", "oracle_success",
	"spl", "DTW", "nDTW", "SDTW", "CLS",
}

// Metrics returns the score keyed by MetricNames.
func (s Score) Metrics() map[string]float64 {
	return map[string]float64{
		"action_steps":       float64(s.ActionSteps),
		"trajectory_steps":   float64(s.TrajectorySteps),
		"trajectory_lengths": s.TrajectoryLength,
		"nav_error":          s.NavError,
		"oracle_error":       s.OracleError,
		"success":            s.Success,
		"oracle_success":     s.OracleSuccess,
		"spl":                s.SPL,
		"DTW":                s.DTW,
		"nDTW":               s.NDTW,
		"SDTW":               s.SDTW,
		"CLS":                s.CLS,
	}
}

// Metrics holds per-item scores in prediction order.
type Metrics struct {
	InstrIDs []string
	Scans    []string
	Scores   []Score
}

// Len returns the number of scored items.
func (m Metrics) Len() int { return len(m.Scores) }

// Column returns one metric for every item, in prediction order.
func (m Metrics) Column(name string) []float64 {
	out := make([]float64, len(m.Scores))
	for i, s := range m.Scores {
		out[i] = s.Metrics()[name]
	}
	return out
}

// Columns returns every metric as a list keyed by name.
func (m Metrics) Columns() map[string][]float64 {
	out := make(map[string][]float64, len(MetricNames))
	for _, name := range MetricNames {
		out[name] = m.Column(name)
	}
	return out
}

// Summary holds the batch means. Rate-like metrics are percentages.
type Summary struct {
	Count       int     `json:"count"`
	ActionSteps float64 `json:"action_steps"`
	Steps       float64 `json:"steps"`
	Lengths     float64 `json:"lengths"`
	NavError    float64 `json:"nav_error"`
	OracleError float64 `json:"oracle_error"`
	SR          float64 `json:"sr"`
	OracleSR    float64 `json:"oracle_sr"`
	SPL         float64 `json:"spl"`
	NDTW        float64 `json:"nDTW"`
	SDTW        float64 `json:"SDTW"`
	CLS         float64 `json:"CLS"`
}

// Summarize averages m. An empty m gives a zero Summary.
func Summarize(m Metrics) Summary {
	if m.Len() == 0 {
		return Summary{}
	}
	mean := func(name string) float64 { return stat.Mean(m.Column(name), nil) }
	return Summary{
		Count:       m.Len(),
		ActionSteps: mean("action_steps"),
		Steps:       mean("trajectory_steps"),
		Lengths:     mean("trajectory_lengths"),
		NavError:    mean("nav_error"),
		OracleError: mean("oracle_error"),
		SR:          mean("success") * 100,
		OracleSR:    mean("oracle_success") * 100,
		SPL:         mean("spl") * 100,
		NDTW:        mean("nDTW") * 100,
		SDTW:        mean("SDTW") * 100,
		CLS:         mean("CLS") * 100,
	}
}

// Map returns the summary keyed by metric name.
func (s Summary) Map() map[string]float64 {
	return map[string]float64{
		"action_steps": s.ActionSteps,
		"steps":        s.Steps,
		"lengths":      s.Lengths,
		"nav_error":    s.NavError,
		"oracle_error": s.OracleError,
		"sr":           s.SR,
		"oracle_sr":    s.OracleSR,
		"spl":          s.SPL,
		"nDTW":         s.NDTW,
		"SDTW":         s.SDTW,
		"CLS":          s.CLS,
	}
}
