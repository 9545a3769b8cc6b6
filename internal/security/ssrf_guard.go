package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/doyensec/safeurl"
)

// blockedNetworks は外部URL取得時にアクセスを禁止するネットワーク範囲。
// アクセサリー画像の取り込み（URL指定）で内部ネットワークへの
// SSRF攻撃を防ぐために使用する。
var blockedNetworks []*net.IPNet

func init() {
	cidrs := []string{
		"127.0.0.0/8",    // ループバック
		"10.0.0.0/8",     // プライベート
		"172.16.0.0/12",  // プライベート
		"192.168.0.0/16", // プライベート
		"169.254.0.0/16", // リンクローカル（クラウドメタデータ含む）
		"0.0.0.0/8",      // 現在のネットワーク
		"::1/128",        // IPv6ループバック
		"fc00::/7",       // IPv6ユニークローカル
		"fe80::/10",      // IPv6リンクローカル
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s", cidr))
		}
		blockedNetworks = append(blockedNetworks, network)
	}
}

// NewSafeClient はSSRF攻撃を防止するHTTPクライアントを生成する。
// safeurlライブラリを使用し、DNSリバインディング攻撃にも対応する。
// アクセサリー画像のURL取り込み処理で使用する。
func NewSafeClient(timeout time.Duration) *safeurl.WrappedClient {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config)
}

// ValidateImageURL は画像取り込み用URLの静的検証を行う。
// スキーム・ホスト形式・IPアドレス範囲をリクエスト発行前に確認する。
// 検証に失敗した場合はエラーを返す。
func ValidateImageURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse url: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme %q is not allowed", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}

	// ホストがIPリテラルの場合はブロック範囲を確認する。
	// ホスト名の場合の名前解決後チェックはsafeurlクライアント側で行われる。
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("ip address %s is in a blocked network range", ip)
		}
	}

	return nil
}

// isBlockedIP はIPアドレスがブロック対象ネットワークに含まれるか判定する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// FetchImage は検証済みURLから画像を取得する。
// ValidateImageURLによる静的検証の後、safeurlクライアントで
// リクエストを発行する。レスポンスのClose責務は呼び出し側が負う。
func FetchImage(client *safeurl.WrappedClient, rawURL string) (*http.Response, error) {
	if err := ValidateImageURL(rawURL); err != nil {
		return nil, fmt.Errorf("image url validation failed: %w", err)
	}

	resp, err := client.Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}

	return resp, nil
}
