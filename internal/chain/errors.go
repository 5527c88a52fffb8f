package chain

// SubmissionError wraps any failure to construct, sign or broadcast a
// transaction, as distinct from an on-chain revert observed in a receipt.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "submission failed: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
