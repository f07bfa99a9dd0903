// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 外部の栄養推定サービス（Gemini、Open Food Facts）へのHTTPクライアント生成と、
// 外部から受け取った食品名の無害化を扱う。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes は外部サービスの呼び出しで許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は外部サービスのエンドポイントとして拒否するネットワーク範囲。
// safeurlのクライアントはDNS解決後のIPアドレスも検証するため、
// ここでの検証は設定値の静的チェックに限られる。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// OutboundGuard は外部サービス呼び出し用のHTTPクライアントを生成する。
// allowPrivateがfalseの場合、プライベートアドレス宛ての通信をsafeurlで遮断する。
// テストやローカルのスタブサーバーに向ける場合のみallowPrivateを有効にする。
type OutboundGuard struct {
	allowPrivate bool
}

// NewOutboundGuard はOutboundGuardを生成する。
func NewOutboundGuard(allowPrivate bool) *OutboundGuard {
	return &OutboundGuard{allowPrivate: allowPrivate}
}

// AllowsPrivate はプライベートアドレス宛ての通信を許可しているかを返す。
func (g *OutboundGuard) AllowsPrivate() bool {
	return g.allowPrivate
}

// NewClient はタイムアウト付きのHTTPクライアントを生成する。
// プライベートアドレスを許可しない場合はsafeurlのクライアントを返し、
// ループバック、プライベート、リンクローカル宛ての接続をDialerレベルで拒否する。
func (g *OutboundGuard) NewClient(timeout time.Duration) *http.Client {
	if g.allowPrivate {
		return &http.Client{Timeout: timeout}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateEndpoint は設定されたエンドポイントURLを静的に検証する。
// スキームとホストは常に検証し、プライベートアドレスの拒否はallowPrivateがfalseの場合のみ行う。
func (g *OutboundGuard) ValidateEndpoint(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if g.allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
