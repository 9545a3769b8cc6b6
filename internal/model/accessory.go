// Package model はドメインモデルを定義する。
package model

import "time"

// Accessory はEVアクセサリーのリスティングを表す。
type Accessory struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AccessoryRating は1ユーザーによる1アクセサリーへの評価を表す。
// (AccessoryID, UserID)で一意。評価値は1〜5の整数。
type AccessoryRating struct {
	AccessoryID string
	UserID      string
	Rating      int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RatingMin とRatingMax は評価値の有効範囲。
const (
	RatingMin = 1
	RatingMax = 5
)

// ValidRating は評価値が有効範囲内かを返す。
func ValidRating(rating int) bool {
	return rating >= RatingMin && rating <= RatingMax
}

// AccessoryWithRating はアクセサリーと評価の集計を結合したビュー。
// UserRatingはリクエストユーザー自身の評価（未評価ならnil）。
// AverageRatingは全評価の算術平均（評価が無い場合は0）。
type AccessoryWithRating struct {
	Accessory
	UserRating    *int
	AverageRating float64
	RatingCount   int
}
