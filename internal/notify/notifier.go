// Package notify はユーザーへの通知送信を提供する。
//
// 送信は非同期のファイアアンドフォーゲットで、呼び出し元のリクエストを
// ブロックせず、送信失敗もリクエストを失敗させない。
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sendTimeout は1件あたりの送信タイムアウト。
const sendTimeout = 10 * time.Second

// Sender は通知の実送信を行うインターフェース。
type Sender interface {
	// Send は通知を1件送信する。
	Send(ctx context.Context, to, templateID string, data map[string]string) error
}

// Notifier は通知の非同期ディスパッチを行う。
type Notifier struct {
	sender Sender
	wg     sync.WaitGroup
}

// NewNotifier はNotifierを生成する。
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Send は通知を非同期に送信する。呼び出しは即座に返る。
// 送信失敗はログに記録されるのみで、呼び出し元には伝播しない。
func (n *Notifier) Send(to, templateID string, data map[string]string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := n.sender.Send(ctx, to, templateID, data); err != nil {
			slog.Error("failed to send notification",
				slog.String("template_id", templateID),
				slog.Any("error", err),
			)
		}
	}()
}

// Shutdown は送信中の通知の完了を待つ。ctxのキャンセルで待機を打ち切る。
func (n *Notifier) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender は通知内容を構造化ログに出力するSender。
// メール配送基盤を持たない環境向けの実装で、宛先とテンプレートIDのみを
// 記録する（本文データはログに残さない）。
type LogSender struct{}

// NewLogSender はLogSenderを生成する。
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send は通知内容をログに出力する。
func (s *LogSender) Send(ctx context.Context, to, templateID string, data map[string]string) error {
	slog.Info("notification dispatched",
		slog.String("to", to),
		slog.String("template_id", templateID),
	)
	return nil
}

// compile-time interface check
var _ Sender = (*LogSender)(nil)
