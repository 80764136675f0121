package ingestion

// AggregateOutcomes folds the terminal outcomes of every execution of an
// event into the event's aggregate verdict:
//
//   - every execution SUCCESS -> SUCCESS
//   - every execution FAILED  -> FAILED
//   - every execution NO_DATA -> NO_DATA
//   - any mix                 -> PARTIAL_SUCCESS
//
// SKIPPED outcomes are redelivery no-ops and are ignored. An empty input
// yields NO_DATA.
func AggregateOutcomes(outcomes []ExecutionOutcome) EventOutcome {
	var success, noData, failed int
	for _, o := range outcomes {
		switch o {
		case ExecutionOutcomeSuccess:
			success++
		case ExecutionOutcomeNoData:
			noData++
		case ExecutionOutcomeFailed:
			failed++
		}
	}
	total := success + noData + failed

	switch {
	case total == 0:
		return EventOutcomeNoData
	case success == total:
		return EventOutcomeSuccess
	case failed == total:
		return EventOutcomeFailed
	case noData == total:
		return EventOutcomeNoData
	default:
		return EventOutcomePartialSuccess
	}
}

// HasSuccess reports whether at least one outcome succeeded; the event closes
// COMPLETED when true and FAILED only when every outcome failed.
func HasSuccess(outcomes []ExecutionOutcome) bool {
	for _, o := range outcomes {
		if o == ExecutionOutcomeSuccess {
			return true
		}
	}
	return false
}
