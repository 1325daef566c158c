package core

import "time"

// VerificationQuery describes what an on-chain search must find for a
// payment to count as settled.
type VerificationQuery struct {
	Sender           string
	Receiver         string
	Currency         Currency
	ExpectedQuantity float64
	TimeWindow       time.Duration
}

// Candidate is a transaction that touched the receiver inside the search
// window but did not match the query. Kept for diagnostics.
type Candidate struct {
	TxHash        string
	SenderDelta   float64
	ReceiverDelta float64
	BlockTime     time.Time
}

// VerificationResult is the outcome of one on-chain search.
type VerificationResult struct {
	Verified   bool
	TxHash     string
	Candidates []Candidate
}

// Verified builds a positive result for the matched transaction.
func Verified(txHash string) VerificationResult {
	return VerificationResult{Verified: true, TxHash: txHash}
}

// Unverified builds a negative result carrying the inspected candidates.
func Unverified(inspected []Candidate) VerificationResult {
	return VerificationResult{Candidates: inspected}
}
