// Package snapshot deduplicates a session's records and persists, reads
// back and verifies the per-session snapshot document.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// SchemaURI is stamped into every snapshot.
const SchemaURI = "https://json-schema.org/draft/2020-12/schema"

// Finalize orders records by discovery position and drops every record
// whose href was already seen. The input slice is not modified.
func Finalize(session string, records []submission.NormalizedSubmission, now time.Time) submission.Snapshot {
	ordered := append([]submission.NormalizedSubmission(nil), records...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	seen := make(map[string]struct{}, len(ordered))
	out := make([]submission.NormalizedSubmission, 0, len(ordered))
	for _, r := range ordered {
		if _, dup := seen[r.Href]; dup {
			continue
		}
		seen[r.Href] = struct{}{}
		out = append(out, r)
	}
	return submission.Snapshot{
		Schema:      SchemaURI,
		Title:       fmt.Sprintf("UNEP Session %s Submissions", session),
		Description: fmt.Sprintf("Metadata for UNEP session %s submissions", session),
		Timestamp:   now.UTC(),
		Submissions: out,
		Session:     session,
	}
}

// FileName is the object name of a session snapshot.
func FileName(session string) string {
	return fmt.Sprintf("metadata_session_%s.json", session)
}

// Writer persists snapshots to a BlobStore under a prefix.
type Writer struct {
	store  submission.BlobStore
	hasher submission.Hasher
	prefix string
	logger *zap.Logger
}

// NewWriter wires a Writer.
func NewWriter(store submission.BlobStore, hasher submission.Hasher, prefix string, logger *zap.Logger) (*Writer, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, hasher: hasher, prefix: prefix, logger: logger.Named("snapshot")}, nil
}

// Path returns the blob path of a session snapshot.
func (w *Writer) Path(session string) string {
	return path.Join(w.prefix, FileName(session))
}

// Encode renders snap as indented JSON.
func Encode(snap submission.Snapshot) ([]byte, error) {
	if snap.Submissions == nil {
		snap.Submissions = []submission.NormalizedSubmission{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Write overwrites the session snapshot and returns its URI and sha256 digest.
func (w *Writer) Write(ctx context.Context, snap submission.Snapshot) (uri, digest string, err error) {
	data, err := Encode(snap)
	if err != nil {
		return "", "", err
	}
	digest, err = w.hasher.Hash(data)
	if err != nil {
		return "", "", fmt.Errorf("hash snapshot: %w", err)
	}
	uri, err = w.store.PutObject(ctx, w.Path(snap.Session), "application/json", bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("put snapshot: %w", err)
	}
	w.logger.Info("snapshot written",
		zap.String("session", snap.Session),
		zap.String("uri", uri),
		zap.Int("records", len(snap.Submissions)),
		zap.String("sha256", digest),
	)
	return uri, digest, nil
}

// Read loads a previously written session snapshot.
func (w *Writer) Read(ctx context.Context, session string) (submission.Snapshot, error) {
	data, err := w.store.GetObject(ctx, w.Path(session))
	if err != nil {
		return submission.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	snap, err := Decode(data)
	if err != nil {
		return submission.Snapshot{}, err
	}
	snap.Session = session
	return snap, nil
}

// Decode parses a snapshot document.
func Decode(data []byte) (submission.Snapshot, error) {
	var snap submission.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return submission.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(snap.Submissions) > 0 && snap.Session == "" {
		snap.Session = snap.Submissions[0].Session
	}
	return snap, nil
}
