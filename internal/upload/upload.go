// Package upload moves inline images to blob storage through presigned URLs
// so that chat payloads carry durable URLs instead of base64 data.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/longkey1/chatc/internal/chatc"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of parallel uploads.
const DefaultConcurrency = 4

// Presigner hands out one upload URL per requested file suffix.
type Presigner interface {
	PresignUploadURLs(ctx context.Context, conversationID int64, suffixes []string) ([]string, error)
}

// Report summarizes one Resolve call.
type Report struct {
	Uploaded int // Images now referenced by a durable URL
	Failed   int // Inline images kept as-is after a failure
}

// Uploader uploads inline images. Uploads go straight to storage with a
// plain HTTP client: presigned URLs carry their own authorization.
type Uploader struct {
	presigner   Presigner
	httpClient  *http.Client
	concurrency int
	logger      *slog.Logger
}

// NewUploader creates an uploader. A nil httpClient uses
// http.DefaultClient; a non-positive concurrency uses DefaultConcurrency.
func NewUploader(p Presigner, httpClient *http.Client, concurrency int, logger *slog.Logger) *Uploader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{presigner: p, httpClient: httpClient, concurrency: concurrency, logger: logger}
}

type pending struct {
	index int
	mime  string
	data  []byte
}

// Resolve returns the payload URL for every image, in order. Inline data
// URLs are uploaded with one presign request for all of them followed by
// independent parallel uploads; each is replaced by its durable URL. An
// image whose upload fails keeps its inline form. Other URLs pass through.
//
// The only error is the cancellation of ctx.
func (u *Uploader) Resolve(ctx context.Context, conversationID int64, images []string) ([]string, Report, error) {
	out := append([]string(nil), images...)
	var report Report

	var todo []pending
	var suffixes []string
	for i, img := range images {
		if !chatc.IsDataURL(img) {
			continue
		}
		mime, suffix, data, err := chatc.ParseDataURL(img)
		if err != nil {
			u.logger.Warn("keeping unparsable inline image", "index", i, "error", err)
			report.Failed++
			continue
		}
		todo = append(todo, pending{index: i, mime: mime, data: data})
		suffixes = append(suffixes, suffix)
	}
	if len(todo) == 0 {
		return out, report, nil
	}

	urls, err := u.presigner.PresignUploadURLs(ctx, conversationID, suffixes)
	if err != nil {
		if ctx.Err() != nil {
			return nil, report, context.Cause(ctx)
		}
		u.logger.Warn("presign failed, sending images inline", "images", len(todo), "error", err)
		report.Failed += len(todo)
		return out, report, nil
	}

	var uploaded, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(u.concurrency)
	for k, p := range todo {
		target := urls[k]
		g.Go(func() error {
			if err := u.put(ctx, target, p.mime, p.data); err != nil {
				u.logger.Warn("image upload failed, sending inline", "index", p.index, "error", err)
				failed.Add(1)
				return nil
			}
			out[p.index] = chatc.StripQuery(target)
			uploaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, report, context.Cause(ctx)
	}
	report.Uploaded += int(uploaded.Load())
	report.Failed += int(failed.Load())
	return out, report, nil
}

// ConvertTurns returns a copy of turns whose inline images are resolved to
// durable URLs. The input turns are not modified.
func (u *Uploader) ConvertTurns(ctx context.Context, conversationID int64, turns []chatc.Turn) ([]chatc.Turn, Report, error) {
	var images []string
	for _, t := range turns {
		for _, img := range t.Content.Images() {
			if chatc.IsDataURL(img) {
				images = append(images, img)
			}
		}
	}

	out := chatc.CloneTurns(turns)
	if len(images) == 0 {
		return out, Report{}, nil
	}

	resolved, report, err := u.Resolve(ctx, conversationID, images)
	if err != nil {
		return nil, report, err
	}

	next := 0
	for i := range out {
		out[i].Content = out[i].Content.MapImages(func(img string) string {
			if !chatc.IsDataURL(img) {
				return img
			}
			r := resolved[next]
			next++
			return r
		})
	}
	return out, report, nil
}

func (u *Uploader) put(ctx context.Context, target, mime string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", mime)
	req.ContentLength = int64(len(data))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading image: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("uploading image: storage returned %s", resp.Status)
	}
	return nil
}
