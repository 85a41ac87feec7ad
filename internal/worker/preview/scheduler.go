package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/repository"
)

// defaultBatchSize は1サイクルで処理するリンク投稿の最大件数。
const defaultBatchSize = 100

// PreviewFetcherService はプレビュー取得の実行インターフェース。
type PreviewFetcherService interface {
	// Fetch は指定投稿のリンクプレビューを取得し、結果を保存する。
	Fetch(ctx context.Context, post *model.Post) error
}

// Scheduler はプレビュー取得のスケジューリングと並列制御を行う。
// 定期ティッカーでタイトル未取得のリンク投稿を取得し、
// semaphoreパターンで最大並列数を制御しながらフェッチを実行する。
type Scheduler struct {
	postRepo       repository.PostRepository
	fetcher        PreviewFetcherService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	postRepo repository.PostRepository,
	fetcher PreviewFetcherService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		postRepo:       postRepo,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("プレビュースケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("プレビューサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("プレビュースケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("プレビューサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はタイトル未取得のリンク投稿を1回取得し、並列でフェッチを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	posts, err := s.postRepo.ListNeedingPreview(ctx, defaultBatchSize)
	if err != nil {
		return err
	}

	if len(posts) == 0 {
		return nil
	}

	s.logger.Info("プレビューサイクルを開始します",
		slog.Int("post_count", len(posts)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, post := range posts {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(p *model.Post) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.fetcher.Fetch(ctx, p); err != nil {
				s.logger.Error("プレビュー取得に失敗しました",
					slog.String("post_id", p.ID),
					slog.String("link_url", p.LinkURL),
					slog.String("error", err.Error()),
				)
			}
		}(post)
	}

	wg.Wait()

	s.logger.Info("プレビューサイクルが完了しました",
		slog.Int("post_count", len(posts)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
