// Package redisstore persists reconciliation results in Redis so several
// diff workers can share one state.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/roach88/casediff/internal/ir"
)

// DefaultPrefix is the key prefix used unless WithPrefix is given.
const DefaultPrefix = "casediff:"

// fieldSep joins kind and doc id in hash fields. Neither may contain it.
const fieldSep = "\x1f"

// Store implements engine.StateStore using Redis.
//
// Layout, relative to the prefix:
//
//	diffed             hash  case_id -> diffed_at
//	diffs              hash  kind\x1fdoc_id -> canonical JSON entries
//	changes            hash  kind\x1fdoc_id -> {"reason","diffs"}
//	missing:types      set   doc types with missing docs
//	missing:<doc_type> set   doc ids
type Store struct {
	client *backend.Client
	prefix string
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock sets the time source for diffed_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Ping checks that the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) diffedKey() string       { return s.prefix + "diffed" }
func (s *Store) diffsKey() string        { return s.prefix + "diffs" }
func (s *Store) changesKey() string      { return s.prefix + "changes" }
func (s *Store) missingTypesKey() string { return s.prefix + "missing:types" }

func (s *Store) missingKey(docType string) string {
	return s.prefix + "missing:" + docType
}

func field(kind, docID string) string {
	return kind + fieldSep + docID
}

func splitField(f string) (kind, docID string, err error) {
	kind, docID, ok := strings.Cut(f, fieldSep)
	if !ok {
		return "", "", fmt.Errorf("malformed field %q", f)
	}
	return kind, docID, nil
}

// changeValue is the stored form of a change record.
type changeValue struct {
	Reason string         `json:"reason"`
	Diffs  []ir.DiffEntry `json:"diffs"`
}

// AddDiffedCases marks cases as diffed, refreshing diffed_at.
func (s *Store) AddDiffedCases(ctx context.Context, caseIDs []string) error {
	if len(caseIDs) == 0 {
		return nil
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	values := make([]any, 0, 2*len(caseIDs))
	for _, id := range caseIDs {
		values = append(values, id, now)
	}
	if err := s.client.HSet(ctx, s.diffedKey(), values...).Err(); err != nil {
		return fmt.Errorf("add diffed cases: %w", err)
	}
	return nil
}

// ReplaceCaseDiffs replaces the stored diffs of every (kind, doc_id) in
// diffs in one MULTI/EXEC. Records with no entries only delete.
func (s *Store) ReplaceCaseDiffs(ctx context.Context, diffs []ir.DiffRecord) error {
	recs := ir.MergeDiffs(diffs)
	if len(recs) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, rec := range recs {
		f := field(rec.Kind, rec.DocID)
		if len(rec.Diffs) == 0 {
			pipe.HDel(ctx, s.diffsKey(), f)
			continue
		}
		data, err := json.Marshal(rec.Diffs)
		if err != nil {
			return fmt.Errorf("marshal diffs %s %s: %w", rec.Kind, rec.DocID, err)
		}
		pipe.HSet(ctx, s.diffsKey(), f, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace case diffs: %w", err)
	}
	return nil
}

// ReplaceCaseChanges replaces the stored changes of every (kind, doc_id)
// in changes in one MULTI/EXEC. Records with no entries only delete.
func (s *Store) ReplaceCaseChanges(ctx context.Context, changes []ir.ChangeRecord) error {
	recs := ir.MergeChanges(changes)
	if len(recs) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, rec := range recs {
		f := field(rec.Kind, rec.DocID)
		if len(rec.Diffs) == 0 {
			pipe.HDel(ctx, s.changesKey(), f)
			continue
		}
		data, err := json.Marshal(changeValue{Reason: rec.Reason, Diffs: rec.Diffs})
		if err != nil {
			return fmt.Errorf("marshal change %s %s: %w", rec.Kind, rec.DocID, err)
		}
		pipe.HSet(ctx, s.changesKey(), f, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace case changes: %w", err)
	}
	return nil
}

// AddMissingDocs records documents missing from the relational store.
func (s *Store) AddMissingDocs(ctx context.Context, docType string, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	members := make([]any, len(docIDs))
	for i, id := range docIDs {
		members[i] = id
	}
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.missingTypesKey(), docType)
	pipe.SAdd(ctx, s.missingKey(docType), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add missing docs: %w", err)
	}
	return nil
}

// RemoveMissingDocs forgets docIDs under every doc type. Types left with
// no ids are dropped from missing:types.
func (s *Store) RemoveMissingDocs(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	types, err := s.client.SMembers(ctx, s.missingTypesKey()).Result()
	if err != nil {
		return fmt.Errorf("remove missing docs: %w", err)
	}
	members := make([]any, len(docIDs))
	for i, id := range docIDs {
		members[i] = id
	}
	pipe := s.client.TxPipeline()
	left := make([]*backend.IntCmd, len(types))
	for i, docType := range types {
		pipe.SRem(ctx, s.missingKey(docType), members...)
		left[i] = pipe.SCard(ctx, s.missingKey(docType))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove missing docs: %w", err)
	}
	for i, docType := range types {
		if left[i].Val() > 0 {
			continue
		}
		if err := s.client.SRem(ctx, s.missingTypesKey(), docType).Err(); err != nil {
			return fmt.Errorf("remove missing doc type %s: %w", docType, err)
		}
	}
	return nil
}

type keyed[T any] struct {
	kind, docID string
	value       T
}

// readHash loads a diff or change hash and returns its entries ordered by
// kind, then doc id.
func readHash[T any](ctx context.Context, s *Store, key string) ([]keyed[T], error) {
	all, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]keyed[T], 0, len(all))
	for f, raw := range all {
		kind, docID, err := splitField(f)
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("%s %s: %w", kind, docID, err)
		}
		out = append(out, keyed[T]{kind: kind, docID: docID, value: v})
	}
	slices.SortFunc(out, func(a, b keyed[T]) int {
		if c := strings.Compare(a.kind, b.kind); c != 0 {
			return c
		}
		return strings.Compare(a.docID, b.docID)
	})
	return out, nil
}

// GetDiffs returns all unresolved diffs ordered by kind, then doc id.
func (s *Store) GetDiffs(ctx context.Context) ([]ir.DiffRecord, error) {
	rows, err := readHash[[]ir.DiffEntry](ctx, s, s.diffsKey())
	if err != nil {
		return nil, fmt.Errorf("get diffs: %w", err)
	}
	out := make([]ir.DiffRecord, len(rows))
	for i, r := range rows {
		out[i] = ir.DiffRecord{Kind: r.kind, DocID: r.docID, Diffs: r.value}
	}
	return out, nil
}

// GetChanges returns all explained changes ordered by kind, then doc id.
func (s *Store) GetChanges(ctx context.Context) ([]ir.ChangeRecord, error) {
	rows, err := readHash[changeValue](ctx, s, s.changesKey())
	if err != nil {
		return nil, fmt.Errorf("get changes: %w", err)
	}
	out := make([]ir.ChangeRecord, len(rows))
	for i, r := range rows {
		out[i] = ir.ChangeRecord{Kind: r.kind, DocID: r.docID, Reason: r.value.Reason, Diffs: r.value.Diffs}
	}
	return out, nil
}

// GetMissingDocs returns missing documents grouped by type, types and ids
// sorted.
func (s *Store) GetMissingDocs(ctx context.Context) ([]ir.MissingDocs, error) {
	types, err := s.client.SMembers(ctx, s.missingTypesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("get missing doc types: %w", err)
	}
	slices.Sort(types)
	out := make([]ir.MissingDocs, 0, len(types))
	for _, docType := range types {
		ids, err := s.client.SMembers(ctx, s.missingKey(docType)).Result()
		if err != nil {
			return nil, fmt.Errorf("get missing %s docs: %w", docType, err)
		}
		slices.Sort(ids)
		out = append(out, ir.MissingDocs{DocType: docType, DocIDs: ids})
	}
	return out, nil
}

// CountDiffedCases returns the number of distinct cases marked diffed.
func (s *Store) CountDiffedCases(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.diffedKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count diffed cases: %w", err)
	}
	return int(n), nil
}

// DiffedAt returns when a case was last marked diffed. It reports false if
// the case was never diffed.
func (s *Store) DiffedAt(ctx context.Context, caseID string) (string, bool, error) {
	at, err := s.client.HGet(ctx, s.diffedKey(), caseID).Result()
	if err == backend.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("diffed at %s: %w", caseID, err)
	}
	return at, true, nil
}
