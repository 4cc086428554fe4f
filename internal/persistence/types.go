package persistence

import "time"

// RunEntry is one row of the run ledger: the durable history of batch
// translation runs, kept for reporting across restarts. It mirrors the
// controller's metadata at the moment it was recorded.
type RunEntry struct {
	RunID              string
	JobID              string
	InputFile          string
	OutputFile         string
	TargetLanguage     string
	RecordsTotal       int
	RecordsProcessed   int
	ValuesTranslated   int
	FormulasTranslated int
	RowsFailed         int
	StartedAt          time.Time
	ElapsedSeconds     float64
	LastCheckpoint     string
	State              string
	UpdatedAt          time.Time
}
