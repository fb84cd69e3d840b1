package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/publisher/memory"
	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

type fakeDownloader struct {
	fail map[string]bool
}

func (d fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	if d.fail[url] {
		return nil, errors.New("status 404")
	}
	return []byte("%PDF-1.7 " + url), nil
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("retriever-%d", s.n), nil
}

// persistence mimics the records API closely enough to drive a sync.
type persistence struct {
	mu       sync.Mutex
	created  []map[string]any
	files    map[string]string
	verified map[string]bool
	tokens   []string
	rejects  string
}

func newPersistence() *persistence {
	return &persistence{files: map[string]string{}, verified: map[string]bool{}}
}

func (p *persistence) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, r.Header.Get(tokenHeader))

	switch {
	case r.Method == http.MethodPost && r.URL.Path == collectionPath:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body["href"] == p.rejects {
			http.Error(w, `{"message":"validation failed"}`, http.StatusBadRequest)
			return
		}
		p.created = append(p.created, body)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("rec%d", len(p.created))})
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, collectionPath+"/"):
		id := strings.TrimPrefix(r.URL.Path, collectionPath+"/")
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			file, header, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			if !strings.HasPrefix(string(data), "%PDF") {
				http.Error(w, "not a pdf", http.StatusBadRequest)
				return
			}
			stored := "stored_" + header.Filename
			p.files[id] = stored
			_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "file": stored})
			return
		}
		var body map[string]bool
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body["verified"] && p.files[id] == "" {
			http.Error(w, "verified without file", http.StatusBadRequest)
			return
		}
		p.verified[id] = body["verified"]
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
	default:
		http.NotFound(w, r)
	}
}

func snapshotOf(hrefs ...string) submission.Snapshot {
	snap := submission.Snapshot{Session: "3"}
	for _, h := range hrefs {
		snap.Submissions = append(snap.Submissions, submission.NormalizedSubmission{
			Title:       "T",
			Authors:     []string{"Japan"},
			Href:        h,
			Session:     "3",
			KeyElements: []string{"Design"},
		})
	}
	return snap
}

func TestSyncHappyPath(t *testing.T) {
	t.Parallel()

	backend := newPersistence()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	pub := memory.New()
	s, err := New(Config{BaseURL: srv.URL + "/", APIToken: "secret", Topic: "index"},
		fakeDownloader{}, pub, &seqIDs{}, zap.NewNop())
	require.NoError(t, err)

	res, err := s.Sync(context.Background(), snapshotOf(
		"https://resolutions.unep.org/incres/uploads/japan_statement.pdf",
		"https://resolutions.unep.org/incres/uploads/peru.pdf?version=2",
	))
	require.NoError(t, err)
	assert.Equal(t, Result{Records: 2, Created: 2, Uploaded: 2, Verified: 2, Published: 2}, res)

	require.Len(t, backend.created, 2)
	assert.Equal(t, false, backend.created[0]["verified"])
	assert.True(t, backend.verified["rec1"])
	assert.Equal(t, "stored_peru.pdf", backend.files["rec2"])
	for _, tok := range backend.tokens {
		assert.Equal(t, "secret", tok)
	}

	msgs := pub.Messages("index")
	require.Len(t, msgs, 2)
	task, ok := msgs[0].Payload.(submission.IndexTask)
	require.True(t, ok)
	assert.Equal(t, submission.IndexTask{
		FileURL:      srv.URL + "/api/files/submissions/rec1/stored_japan_statement.pdf",
		SubmissionID: "rec1",
		RetrieverID:  "retriever-1",
		Href:         "https://resolutions.unep.org/incres/uploads/japan_statement.pdf",
		KeyElements:  []string{"Design"},
		Session:      "3",
	}, task)
}

func TestSyncSkipsFailedRecords(t *testing.T) {
	t.Parallel()

	backend := newPersistence()
	backend.rejects = "https://x.test/rejected.pdf"
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	pub := memory.New()
	dl := fakeDownloader{fail: map[string]bool{"https://x.test/missing.pdf": true}}
	s, err := New(Config{BaseURL: srv.URL}, dl, pub, &seqIDs{}, nil)
	require.NoError(t, err)

	res, err := s.Sync(context.Background(), snapshotOf(
		"https://x.test/rejected.pdf",
		"https://x.test/missing.pdf",
		"https://x.test/ok.pdf",
	))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Published)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, pub.Messages(), 1)
	assert.Empty(t, pub.Messages()[0].Topic)
}

func TestSyncStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newPersistence())
	t.Cleanup(srv.Close)

	s, err := New(Config{BaseURL: srv.URL}, fakeDownloader{}, memory.New(), &seqIDs{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Sync(ctx, snapshotOf("https://x.test/a.pdf"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, fakeDownloader{}, memory.New(), &seqIDs{}, nil)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "http://localhost:8090"}, nil, memory.New(), &seqIDs{}, nil)
	require.Error(t, err)
}

func TestFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.pdf", fileName("https://x.test/uploads/a.pdf?x=1#page=2"))
	assert.Equal(t, "statement.pdf", fileName("https://x.test/uploads/._statement.pdf"))
	assert.Equal(t, "download.pdf", fileName("https://x.test/download"))
}
