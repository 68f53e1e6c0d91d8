package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/shouni/go-gallery-trend/pkg/retry"
)

const (
	// HTTPクライアント関連の定数
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second
	MaxBodySize           = int64(10 * 1024 * 1024) // 10MB: レスポンスボディの最大読み込みサイズ

	// エラーメッセージに含めるボディの最大長
	maxErrorBodyLength = 1024
)

// ErrTransport はリクエストの送信やボディの受信中に発生したネットワーク/接続エラーを示します。
// このエラーはリトライ対象です。
var ErrTransport = errors.New("ネットワーク/接続エラー")

// ErrBodyTooLarge はレスポンスボディが MaxBodySize を超えたことを示します。
var ErrBodyTooLarge = fmt.Errorf("レスポンスボディが最大サイズ (%dバイト) を超えました", MaxBodySize)

// Doer は、標準の *http.Client.Do() と互換性のあるHTTPクライアントのインターフェースを定義します。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Timeouts は接続フェーズと読み込みフェーズのタイムアウトです。
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
}

// DefaultTimeouts はデフォルトのタイムアウトを返します。
func DefaultTimeouts() Timeouts {
	return Timeouts{Connect: DefaultConnectTimeout, Read: DefaultReadTimeout}
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = DefaultConnectTimeout
	}
	if t.Read <= 0 {
		t.Read = DefaultReadTimeout
	}
	return t
}

// Response は 200 OK のレスポンスです。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError は 200 以外のステータスコードを示すエラー型です。
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return fmt.Sprintf("HTTPステータスエラー: ステータスコード %d, ボディなし", e.StatusCode)
	}
	if len(body) > maxErrorBodyLength {
		body = body[:maxErrorBodyLength] + "..."
	}
	return fmt.Sprintf("HTTPステータスエラー: ステータスコード %d, ボディ: %s", e.StatusCode, body)
}

// AsStatusError は err から StatusError を取り出します。
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryableStatus はデフォルトのリトライ対象 (429 と 5xx) かどうかを判定します。
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// Client はHTTPリクエストと指数バックオフを用いたリトライロジックを管理します。
// 複数のゴルーチンから同時に利用できます。
type Client struct {
	httpClient    Doer
	retryConfig   retry.Config
	header        http.Header
	retryStatuses map[int]bool
}

// ClientOption はClientの設定を行うための関数型です。
type ClientOption func(*Client)

// WithHTTPClient はカスタムのDoerを設定します。
func WithHTTPClient(doer Doer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithRetryConfig はリトライ設定を差し替えます。
func WithRetryConfig(cfg retry.Config) ClientOption {
	return func(c *Client) {
		c.retryConfig = cfg
	}
}

// WithMaxAttempts は初回を含む最大試行回数を設定します。
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		c.retryConfig.MaxAttempts = n
	}
}

// WithRetryStatuses はリトライ対象のステータスコードを明示します。空の場合は 429 と 5xx です。
func WithRetryStatuses(codes ...int) ClientOption {
	return func(c *Client) {
		if len(codes) == 0 {
			c.retryStatuses = nil
			return
		}
		c.retryStatuses = make(map[int]bool, len(codes))
		for _, code := range codes {
			c.retryStatuses[code] = true
		}
	}
}

// WithHeader はすべてのリクエストに付与する固定ヘッダーを追加します。
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// New は、新しいClientを生成します。
// 接続タイムアウトはダイヤラーに、読み込みタイムアウトはレスポンスヘッダー待ちとボディ読み込みに適用されます。
func New(timeouts Timeouts, options ...ClientOption) *Client {
	timeouts = timeouts.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeouts.Connect,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = timeouts.Connect
	transport.ResponseHeaderTimeout = timeouts.Read

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeouts.Connect + timeouts.Read,
		},
		retryConfig: retry.DefaultConfig(),
		header:      make(http.Header),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Get はクエリパラメータ付きで GET し、200 OK のレスポンスを返します。
// リトライ対象のステータスやネットワークエラーは指数バックオフで再試行されます。
// 200 以外で終わった場合は *StatusError を含むエラーを返します。
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values) (*Response, error) {
	target, err := buildURL(rawURL, query)
	if err != nil {
		return nil, err
	}

	var res *Response
	op := func() error {
		var getErr error
		res, getErr = c.doGet(ctx, target)
		return getErr
	}

	if err := retry.Do(ctx, c.retryConfig, fmt.Sprintf("URL(%s)のフェッチ", target), op, c.isRetryableError); err != nil {
		return nil, err
	}
	return res, nil
}

func buildURL(rawURL string, query url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("URLのパースエラー: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// doGet は実際の一度のHTTP GETリクエストを実行します。
func (c *Client) doGet(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("GETリクエスト作成に失敗しました: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗しました: %w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, readErr := readLimited(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	if readErr != nil {
		return nil, readErr
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// readLimited はボディを MaxBodySize まで読み込みます。
// Content-Length が不明な場合も、上限を超えたボディは切り詰めずに ErrBodyTooLarge を返します。
func readLimited(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w: %w", ErrTransport, err)
	}
	if int64(len(body)) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// isRetryableError はエラーがHTTPリトライ対象かどうかを判定します。
// この関数は retry.ShouldRetryFunc 型のシグネチャを満たします。
func (c *Client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := AsStatusError(err); ok {
		if c.retryStatuses != nil {
			return c.retryStatuses[se.StatusCode]
		}
		return IsRetryableStatus(se.StatusCode)
	}
	return isNetworkError(err)
}

// isNetworkError はネットワーク/接続エラーやタイムアウトかどうかを判定します。
// ボディサイズ超過やリクエスト作成の失敗など、ローカルで発生したエラーは含みません。
func isNetworkError(err error) bool {
	if errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	if errors.Is(err, ErrTransport) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
