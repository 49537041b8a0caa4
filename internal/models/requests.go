package models

// AnalyzeRequest identifies the candidate release under analysis.
type AnalyzeRequest struct {
	PackageName      string
	CandidateVersion string
	// PackagePath points at the local working copy. Optional; oracles that
	// inspect the filesystem degrade to an unknown signal without it.
	PackagePath string
}
