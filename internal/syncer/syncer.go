// Package syncer pushes a snapshot into the persistence service, uploads each
// document and hands verified records off for indexing.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

const (
	collectionPath = "/api/collections/submissions/records"
	filesPath      = "/api/files/submissions"
	tokenHeader    = "X-API-TOKEN"
)

// Config describes the persistence service endpoint.
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	// Topic receives index tasks; empty uses the publisher's default.
	Topic string
}

// Result totals one sync pass.
type Result struct {
	Records   int `json:"records"`
	Created   int `json:"created"`
	Uploaded  int `json:"uploaded"`
	Verified  int `json:"verified"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

// Syncer drives the create, upload, verify and publish sequence per record.
type Syncer struct {
	cfg        Config
	base       *url.URL
	client     *http.Client
	downloader submission.Downloader
	publisher  submission.Publisher
	ids        submission.IDGenerator
	logger     *zap.Logger
}

// New wires a Syncer.
func New(
	cfg Config,
	downloader submission.Downloader,
	publisher submission.Publisher,
	ids submission.IDGenerator,
	logger *zap.Logger,
) (*Syncer, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("persistence base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse persistence base url: %w", err)
	}
	if downloader == nil || publisher == nil || ids == nil {
		return nil, errors.New("downloader, publisher and id generator are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		cfg:  cfg,
		base: base,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		downloader: downloader,
		publisher:  publisher,
		ids:        ids,
		logger:     logger.Named("syncer"),
	}, nil
}

// Sync processes every record in snap. Record failures are logged and
// counted; only context cancellation aborts the pass.
func (s *Syncer) Sync(ctx context.Context, snap submission.Snapshot) (Result, error) {
	res := Result{Records: len(snap.Submissions)}
	for _, rec := range snap.Submissions {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("sync session %s: %w", snap.Session, err)
		}
		if err := s.syncRecord(ctx, rec, &res); err != nil {
			res.Failed++
			s.logger.Error("sync record failed",
				zap.String("session", rec.Session),
				zap.String("href", rec.Href),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("sync finished",
		zap.String("session", snap.Session),
		zap.Int("records", res.Records),
		zap.Int("published", res.Published),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Syncer) syncRecord(ctx context.Context, rec submission.NormalizedSubmission, res *Result) error {
	id, err := s.create(ctx, rec)
	if err != nil {
		return err
	}
	res.Created++

	pdf, err := s.downloader.Download(ctx, rec.Href)
	if err != nil {
		return fmt.Errorf("download %s: %w", rec.Href, err)
	}
	stored, err := s.upload(ctx, id, fileName(rec.Href), pdf)
	if err != nil {
		return err
	}
	res.Uploaded++

	if err := s.markVerified(ctx, id); err != nil {
		return err
	}
	res.Verified++

	retrieverID, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("retriever id: %w", err)
	}
	task := submission.IndexTask{
		FileURL:      s.endpoint(filesPath, id, stored),
		SubmissionID: id,
		RetrieverID:  retrieverID,
		Href:         rec.Href,
		KeyElements:  rec.KeyElements,
		Session:      rec.Session,
	}
	if task.KeyElements == nil {
		task.KeyElements = []string{}
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, task); err != nil {
		return fmt.Errorf("publish index task: %w", err)
	}
	res.Published++
	return nil
}

type recordResponse struct {
	ID   string `json:"id"`
	File string `json:"file"`
}

func (s *Syncer) create(ctx context.Context, rec submission.NormalizedSubmission) (string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	var out recordResponse
	if err := s.do(ctx, http.MethodPost, s.endpoint(collectionPath), "application/json", bytes.NewReader(body), &out); err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("create record: response carried no id")
	}
	return out.ID, nil
}

func (s *Syncer) upload(ctx context.Context, id, name string, pdf []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(pdf); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}
	var out recordResponse
	if err := s.do(ctx, http.MethodPatch, s.endpoint(collectionPath, id), mw.FormDataContentType(), &buf, &out); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	if out.File == "" {
		return name, nil
	}
	return out.File, nil
}

func (s *Syncer) markVerified(ctx context.Context, id string) error {
	body := []byte(`{"verified":true}`)
	if err := s.do(ctx, http.MethodPatch, s.endpoint(collectionPath, id), "application/json", bytes.NewReader(body), nil); err != nil {
		return fmt.Errorf("verify record: %w", err)
	}
	return nil
}

func (s *Syncer) do(ctx context.Context, method, target, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if s.cfg.APIToken != "" {
		req.Header.Set(tokenHeader, s.cfg.APIToken)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (s *Syncer) endpoint(p string, segments ...string) string {
	u := *s.base
	u.Path = path.Join(append([]string{u.Path, p}, segments...)...)
	u.RawPath = ""
	return u.String()
}

// fileName derives the upload name from an href, dropping query and fragment.
func fileName(href string) string {
	name := href
	if u, err := url.Parse(href); err == nil && u.Path != "" {
		name = u.Path
	}
	name = path.Base(name)
	name = strings.ReplaceAll(name, "._", "")
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
