package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/casediff/internal/ir"
)

// marshalEntries converts diff entries to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalEntries(entries []ir.DiffEntry) (string, error) {
	arr := make(ir.IRArray, len(entries))
	for i, e := range entries {
		arr[i] = e.Object()
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal diff entries: %w", err)
	}
	return string(data), nil
}

// unmarshalEntries parses canonical JSON TEXT to diff entries.
// Integers come back as ir.IRInt via json.Number, so values > 2^53 keep
// their precision.
func unmarshalEntries(data string) ([]ir.DiffEntry, error) {
	if data == "" || data == "[]" {
		return []ir.DiffEntry{}, nil
	}
	var entries []ir.DiffEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("unmarshal diff entries: %w", err)
	}
	if entries == nil {
		entries = []ir.DiffEntry{}
	}
	return entries, nil
}
