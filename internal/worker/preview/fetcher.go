// Package preview はリンク投稿のプレビュー取得を行うバックグラウンド処理を提供する。
// スケジューラとフェッチャーを含む。
package preview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/repository"
)

// maxTitleLength は取得するリンクタイトルの最大文字数。超過分は切り詰める。
const maxTitleLength = 200

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// FetchRecorder はプレビュー取得のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type FetchRecorder interface {
	RecordPreviewFetch(success bool)
}

// nopRecorder は何も記録しないFetchRecorder。
type nopRecorder struct{}

func (nopRecorder) RecordPreviewFetch(success bool) {}

// Fetcher は個別リンク投稿のHTTPフェッチとタイトル抽出を行う。
// SSRF検証済みクライアントでリンク先を取得し、HTMLのtitle要素を
// 投稿のプレビューとして保存する。
type Fetcher struct {
	postRepo    repository.PostRepository
	ssrfGuard   SSRFValidator
	recorder    FetchRecorder
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// recorderがnilの場合は記録しない。
func NewFetcher(
	postRepo repository.PostRepository,
	ssrfGuard SSRFValidator,
	recorder FetchRecorder,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Fetcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Fetcher{
		postRepo:    postRepo,
		ssrfGuard:   ssrfGuard,
		recorder:    recorder,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch はリンク投稿のプレビューを取得し、結果を保存する。
// 取得失敗時も取得日時を記録し、同じ投稿の無限再試行を防ぐ。
func (f *Fetcher) Fetch(ctx context.Context, post *model.Post) error {
	start := time.Now()

	title, err := f.fetchTitle(ctx, post.LinkURL)
	if err != nil {
		f.recorder.RecordPreviewFetch(false)
		f.logger.Warn("プレビュー取得に失敗しました",
			slog.String("post_id", post.ID),
			slog.String("link_url", post.LinkURL),
			slog.String("error", err.Error()),
		)
		// 失敗も記録して再試行対象から外す
		if updateErr := f.postRepo.UpdatePreview(ctx, post.ID, "", time.Now()); updateErr != nil {
			return fmt.Errorf("failed to record preview failure: %w", updateErr)
		}
		return nil
	}

	if err := f.postRepo.UpdatePreview(ctx, post.ID, title, time.Now()); err != nil {
		return fmt.Errorf("failed to update preview: %w", err)
	}

	f.recorder.RecordPreviewFetch(true)
	f.logger.Info("プレビュー取得が完了しました",
		slog.String("post_id", post.ID),
		slog.String("link_url", post.LinkURL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// fetchTitle はリンク先HTMLのtitle要素を取得する。
func (f *Fetcher) fetchTitle(ctx context.Context, rawURL string) (string, error) {
	// SSRF検証（登録時の事前検証に加え、フェッチ直前にも再検証する）
	if err := f.ssrfGuard.ValidateURL(rawURL); err != nil {
		return "", fmt.Errorf("URL validation failed: %w", err)
	}

	client := f.ssrfGuard.NewSafeClient(f.timeout, f.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Agora/1.0 Link Preview")
	req.Header.Set("Accept", "text/html, application/xhtml+xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	title, err := extractTitle(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return "", err
	}
	return title, nil
}

// extractTitle はHTMLストリームからtitle要素のテキストを抽出する。
// 最初のtitle要素で確定し、以降の読み取りは行わない。
func extractTitle(r io.Reader) (string, error) {
	tokenizer := html.NewTokenizer(r)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				return "", fmt.Errorf("no title element found")
			}
			return "", fmt.Errorf("failed to parse HTML: %w", tokenizer.Err())

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if string(name) != "title" {
				continue
			}
			if tokenizer.Next() != html.TextToken {
				return "", fmt.Errorf("empty title element")
			}
			title := strings.TrimSpace(string(tokenizer.Text()))
			if title == "" {
				return "", fmt.Errorf("empty title element")
			}
			if runes := []rune(title); len(runes) > maxTitleLength {
				title = string(runes[:maxTitleLength])
			}
			return title, nil
		}
	}
}
