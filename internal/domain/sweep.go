package domain

// SweepResult summarizes one run of a batch reward job.
type SweepResult struct {
	Candidates int `json:"candidates"`
	Awarded    int `json:"awarded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}
