// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はチャットメッセージ本文およびアクセサリー説明文を
// サニタイズし、XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリの許可リストベースのポリシーを使用する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
// メッセージ送信・編集時およびアクセサリー作成・更新時に使用される。
type TextSanitizerService interface {
	// SanitizeText はプレーンテキストとして扱う入力から全HTMLタグを除去する。
	// チャットメッセージ本文に使用する。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string

	// SanitizeDescription はアクセサリー説明文をサニタイズする。
	// 最小限の整形タグ（p, br, ul, ol, li, strong, em）のみ通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	SanitizeDescription(rawHTML string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	strict      *bluemonday.Policy
	description *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// メッセージ本文用のStrictPolicy（全タグ除去）と、
// 説明文用の最小整形ポリシーの2つを構築する。
func NewTextSanitizer() *textSanitizer {
	desc := bluemonday.NewPolicy()
	desc.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")

	return &textSanitizer{
		strict:      bluemonday.StrictPolicy(),
		description: desc,
	}
}

// SanitizeText はプレーンテキスト入力から全HTMLタグを除去する。
func (s *textSanitizer) SanitizeText(raw string) string {
	return s.strict.Sanitize(raw)
}

// SanitizeDescription はアクセサリー説明文をサニタイズする。
func (s *textSanitizer) SanitizeDescription(rawHTML string) string {
	return s.description.Sanitize(rawHTML)
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
