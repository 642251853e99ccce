package domain

// ExtractionStatusCounts tallies live extraction statuses for one case.
type ExtractionStatusCounts struct {
	Total      int
	Pending    int
	Assigned   int
	InProgress int
	Paused     int
	Completed  int
}

// CountExtractionStatuses tallies the statuses of the given extractions,
// skipping soft-deleted records.
func CountExtractionStatuses(extractions []Extraction) ExtractionStatusCounts {
	var counts ExtractionStatusCounts
	for _, ex := range extractions {
		if ex.Deleted() {
			continue
		}
		counts.Total++
		switch ex.Status {
		case ExtractionStatusPending:
			counts.Pending++
		case ExtractionStatusAssigned:
			counts.Assigned++
		case ExtractionStatusInProgress:
			counts.InProgress++
		case ExtractionStatusPaused:
			counts.Paused++
		case ExtractionStatusCompleted:
			counts.Completed++
		}
	}
	return counts
}

// DeriveCaseStatus computes a case status from the statuses of its live
// extractions. Rules are checked in priority order; the first match wins:
//
//  1. no extractions                  -> draft
//  2. any in progress                 -> in_progress
//  3. paused and completed, no others -> paused
//  4. any assigned                    -> waiting_start
//  5. all pending                     -> waiting_extractor
//  6. all completed                   -> completed
//
// Any other mix of active statuses means work is underway on the case as a
// whole even though no single extraction is running, so it reports
// in_progress.
func DeriveCaseStatus(counts ExtractionStatusCounts) CaseStatus {
	switch {
	case counts.Total == 0:
		return CaseStatusDraft
	case counts.InProgress > 0:
		return CaseStatusInProgress
	case counts.Paused > 0 && counts.Paused+counts.Completed == counts.Total:
		return CaseStatusPaused
	case counts.Assigned > 0:
		return CaseStatusWaitingStart
	case counts.Pending == counts.Total:
		return CaseStatusWaitingExtractor
	case counts.Completed == counts.Total:
		return CaseStatusCompleted
	default:
		return CaseStatusInProgress
	}
}

// DeriveCaseStatusFrom is a convenience wrapper over CountExtractionStatuses
// and DeriveCaseStatus.
func DeriveCaseStatusFrom(extractions []Extraction) CaseStatus {
	return DeriveCaseStatus(CountExtractionStatuses(extractions))
}
