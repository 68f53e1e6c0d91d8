// Package page は、検索結果の1ページを取得し、その結果を成功/リトライ可能な失敗/致命的な失敗に分類します。
package page

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shouni/go-gallery-trend/pkg/httpclient"
	"github.com/shouni/go-gallery-trend/pkg/listing"
)

const (
	DefaultBaseURL    = "https://gall.dcinside.com/board/lists"
	DefaultBoardID    = "pizza"
	DefaultSearchType = "search_subject_memo"

	// ソース側で即座に拒否されないためのブラウザ相当のヘッダー
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// ErrNoRows は、ページに一覧の行が1つも存在しないことを示します。
var ErrNoRows = errors.New("一覧の行が見つかりません (結果の終端、またはHTML構造の変更)")

// Kind はページ取得の最終結果の種別です。
type Kind int

const (
	Success Kind = iota
	RetryableFailure
	FatalFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable"
	case FatalFailure:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome は1ページ分の取得結果です。
type Outcome struct {
	Kind       Kind
	Rows       []listing.Row
	StatusCode int   // 判明している場合のみ
	Reason     error // 失敗時の理由
}

// Endpoint は検索一覧のエンドポイントと固定のクエリです。
type Endpoint struct {
	BaseURL    string `yaml:"base_url"`
	BoardID    string `yaml:"board_id"`
	SearchType string `yaml:"search_type"`
}

// DefaultEndpoint はデフォルトのエンドポイントを返します。
func DefaultEndpoint() Endpoint {
	return Endpoint{
		BaseURL:    DefaultBaseURL,
		BoardID:    DefaultBoardID,
		SearchType: DefaultSearchType,
	}
}

// Referer は一覧トップのURLを返します。
func (e Endpoint) Referer() string {
	return e.BaseURL + "?" + url.Values{"id": {e.BoardID}}.Encode()
}

// Query はキーワードとページ番号に対応するクエリパラメータを返します。
func (e Endpoint) Query(keyword string, pageNumber int) url.Values {
	return url.Values{
		"id":        {e.BoardID},
		"s_type":    {e.SearchType},
		"s_keyword": {keyword},
		"page":      {strconv.Itoa(pageNumber)},
	}
}

// HeaderOptions は、ソースが要求する固定ヘッダーを httpclient のオプションとして返します。
func (e Endpoint) HeaderOptions() []httpclient.ClientOption {
	return []httpclient.ClientOption{
		httpclient.WithHeader("User-Agent", DefaultUserAgent),
		httpclient.WithHeader("Referer", e.Referer()),
		httpclient.WithHeader("Accept-Language", DefaultAcceptLanguage),
	}
}

// Getter は、クエリ付き GET を行うトランスポートです。*httpclient.Client が満たします。
type Getter interface {
	Get(ctx context.Context, rawURL string, query url.Values) (*httpclient.Response, error)
}

// RowExtractor は、レスポンスボディから一覧の行を取り出します。*listing.Extractor が満たします。
type RowExtractor interface {
	ExtractBytes(body []byte, contentType string) ([]listing.Row, error)
}

// Fetcher は1ページの取得と分類を行います。
type Fetcher struct {
	client    Getter
	extractor RowExtractor
	endpoint  Endpoint
}

// NewFetcher は、新しい Fetcher を生成します。
func NewFetcher(client Getter, extractor RowExtractor, endpoint Endpoint) (*Fetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("page.NewFetcher: client cannot be nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("page.NewFetcher: extractor cannot be nil")
	}
	if endpoint.BaseURL == "" {
		endpoint = DefaultEndpoint()
	}
	return &Fetcher{client: client, extractor: extractor, endpoint: endpoint}, nil
}

// Fetch は keyword の pageNumber ページを取得します。リトライはトランスポート内で完結し、
// 呼び出し側には最終的な結果のみが返されます。
func (f *Fetcher) Fetch(ctx context.Context, keyword string, pageNumber int) Outcome {
	res, err := f.client.Get(ctx, f.endpoint.BaseURL, f.endpoint.Query(keyword, pageNumber))
	if err != nil {
		outcome := Outcome{Kind: RetryableFailure, Reason: err}
		if se, ok := httpclient.AsStatusError(err); ok {
			outcome.StatusCode = se.StatusCode
		}
		return outcome
	}

	rows, err := f.extractor.ExtractBytes(res.Body, res.Header.Get("Content-Type"))
	if err != nil {
		return Outcome{Kind: RetryableFailure, StatusCode: res.StatusCode, Reason: err}
	}
	if len(rows) == 0 {
		return Outcome{Kind: FatalFailure, StatusCode: res.StatusCode, Reason: ErrNoRows}
	}
	return Outcome{Kind: Success, Rows: rows, StatusCode: res.StatusCode}
}
