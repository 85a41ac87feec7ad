// Package model はドメインモデルを定義する。
package model

import "time"

// ResourceType はアクセス制御の対象となるリソース種別を表す。
type ResourceType string

const (
	ResourceTypePost    ResourceType = "post"
	ResourceTypeComment ResourceType = "comment"
	ResourceTypeGroup   ResourceType = "group"
)

// Group は投稿をまとめるコミュニティを表す。
type Group struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Post は投稿を表す。
// Bodyはサニタイズ済みHTML。LinkURLが設定されている場合はリンク投稿で、
// ワーカーがリンク先タイトルを非同期に取得してLinkTitleに格納する。
// OwnerIDは作成後に変更されない。
type Post struct {
	ID               string
	OwnerID          string
	GroupID          string // 所属グループ。未所属の場合は空
	Title            string
	Body             string
	LinkURL          string
	LinkTitle        string
	IsPublic         bool
	PreviewFetchedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Comment は投稿へのコメントを表す。Bodyはサニタイズ済みHTML。
type Comment struct {
	ID        string
	PostID    string
	OwnerID   string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Grant はオブジェクトレベルの明示的な許可を表す。
// 所有権ルールを超えてモデレーター等に操作を許可する場合に作成され、
// リソース削除時に連動して破棄される。
type Grant struct {
	UserID       string
	ResourceType ResourceType
	ResourceID   string
	Action       string
	GrantedBy    string
	CreatedAt    time.Time
}

// Bookmark はユーザーによる投稿のブックマークを表す。
type Bookmark struct {
	UserID    string
	PostID    string
	CreatedAt time.Time
}

// ReportStatus は通報の処理状態を表す。
type ReportStatus string

const (
	// ReportStatusOpen は未対応の通報。
	ReportStatusOpen ReportStatus = "open"
	// ReportStatusResolved は対応済みの通報。
	ReportStatusResolved ReportStatus = "resolved"
)

// Report は投稿・コメントに対するコンテンツ通報を表す。
// 通報対象が削除されても監査のため記録は残る。
type Report struct {
	ID           string
	ReporterID   string
	ResourceType ResourceType
	ResourceID   string
	Reason       string
	Status       ReportStatus
	CreatedAt    time.Time
	ResolvedAt   *time.Time
	ResolvedBy   string // 未対応の場合は空
}
