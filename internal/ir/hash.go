package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with stored fingerprints.
const (
	DomainDiff   = "casediff/diff/v1"
	DomainChange = "casediff/change/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DiffFingerprint identifies the shape of a divergence: the same set of
// entries on the same record yields the same fingerprint across runs, so a
// report can tell a recurring divergence from a new one.
func DiffFingerprint(kind, docID string, entries []DiffEntry) (string, error) {
	canonical, err := MarshalCanonical(fingerprintObject(kind, docID, entries))
	if err != nil {
		return "", fmt.Errorf("DiffFingerprint: %w", err)
	}
	return hashWithDomain(DomainDiff, canonical), nil
}

// ChangeFingerprint is DiffFingerprint for explained changes; the reason
// is part of the identity.
func ChangeFingerprint(kind, docID, reason string, entries []DiffEntry) (string, error) {
	obj := fingerprintObject(kind, docID, entries)
	obj["reason"] = IRString(reason)
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ChangeFingerprint: %w", err)
	}
	return hashWithDomain(DomainChange, canonical), nil
}

func fingerprintObject(kind, docID string, entries []DiffEntry) IRObject {
	arr := make(IRArray, len(entries))
	for i, e := range entries {
		arr[i] = e.Object()
	}
	return IRObject{
		"kind":    IRString(kind),
		"doc_id":  IRString(docID),
		"entries": arr,
	}
}
