package model

import "time"

// ZKProof is a hash-commitment disclosure proof over one property of a
// document. This is a simulation of a zero-knowledge proof: it binds the
// property to the document hash without revealing sibling values, but it has
// no witness-extraction resistance and must not be treated as a sound ZK
// scheme.
type ZKProof struct {
	Property      string
	PropertyHash  string
	DataHash      string
	SiblingHashes []string
	RangeProof    *RangeProof
	Timestamp     time.Time
	ProofValue    string
}

// RangeProof is the threshold stub attached when the proven property is
// numeric. The bounds are illustrative, not cryptographically enforced.
type RangeProof struct {
	Min        float64
	Max        float64
	Commitment string
}
