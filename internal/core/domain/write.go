package domain

// ReportWrite is everything needed to persist one generated report atomically.
type ReportWrite struct {
	SubjectID   string
	Category    Category
	InvestorKey InvestorKey
	// ExpectedVersion is the result version observed before generation; 0 means no row existed.
	ExpectedVersion int
	Output          Output
	Factors         []FactorDefinition
}

// LockKey returns the key serializing writers of this report.
func (w ReportWrite) LockKey() string {
	return LockKey(w.SubjectID, w.Category, w.InvestorKey)
}

// PersistOutcome reports what a committed write produced.
type PersistOutcome struct {
	ResultID       string
	Version        int
	Score          *CategoryScore
	CachedScore    *float64
	SkippedFactors []string
}
