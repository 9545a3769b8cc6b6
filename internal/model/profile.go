// Package model はドメインモデルを定義する。
package model

import "time"

// Profile はEVオーナーのプロフィールを表す。
// EmailとPlateNumberは全プロフィールを通じて一意。
type Profile struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PlateNumber  string
	VehicleModel string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleUser は一般ユーザー。初回サインイン時のデフォルト。
	RoleUser Role = "user"
	// RoleAdmin は管理者。管理パネルへのアクセスを許可する。
	RoleAdmin Role = "admin"
)

// UserRole はuser_rolesテーブルの1行を表す。
type UserRole struct {
	UserID    string
	Role      Role
	CreatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ProfileWithRole はプロフィールと管理者フラグを結合したビュー。
// 管理パネルのユーザー一覧で使用する。
type ProfileWithRole struct {
	Profile
	IsAdmin bool
}
