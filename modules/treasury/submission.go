package treasury

// Submission identifies a signed transfer handed to the cluster. A transaction that
// has not landed by LastValidBlockHeight can no longer land.
type Submission struct {
	Signature            string
	LastValidBlockHeight uint64
}

// RecordFunc persists a signed transfer before it is sent.
type RecordFunc func(Submission) error

// SubmissionState is what the cluster reports for a submitted transfer.
type SubmissionState int

const (
	// SubmissionPending means the outcome is not known yet. The transfer may still land.
	SubmissionPending SubmissionState = iota
	// SubmissionLanded means the transfer is confirmed and the funds moved.
	SubmissionLanded
	// SubmissionFailed means the transaction landed with an error and moved nothing.
	SubmissionFailed
	// SubmissionExpired means the transaction was never seen and its blockhash expired.
	SubmissionExpired
)

func (s SubmissionState) String() string {
	switch s {
	case SubmissionLanded:
		return "landed"
	case SubmissionFailed:
		return "failed"
	case SubmissionExpired:
		return "expired"
	default:
		return "pending"
	}
}

// Resubmittable reports whether a new transaction can be built for the same
// transfer without paying twice.
func (s SubmissionState) Resubmittable() bool {
	return s == SubmissionFailed || s == SubmissionExpired
}
