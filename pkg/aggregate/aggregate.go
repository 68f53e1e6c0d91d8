// Package aggregate は、複数キーワードの収集を実行し、結果を1つの表にまとめます。
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shouni/go-gallery-trend/pkg/crawler"
	"github.com/shouni/go-gallery-trend/pkg/httpclient"
	"github.com/shouni/go-gallery-trend/pkg/listing"
	"github.com/shouni/go-gallery-trend/pkg/page"
	"github.com/shouni/go-gallery-trend/pkg/progress"
	"github.com/shouni/go-gallery-trend/pkg/retry"
	"github.com/shouni/go-gallery-trend/pkg/types"
)

const (
	// DefaultConcurrency は、キーワード単位の同時実行数のデフォルト値です。1 は逐次実行です。
	DefaultConcurrency = 1
	// MaxConcurrency は、ソースへの負荷を抑えるための同時実行数の上限です。
	MaxConcurrency = 6
)

// Collector は1キーワード分の日別件数を返します。*crawler.Crawler が満たします。
type Collector interface {
	Collect(ctx context.Context, keyword string, window types.Window, sink progress.Sink) (types.DailyCount, error)
}

// Aggregator はキーワードごとの収集を実行し、結果をマージします。
type Aggregator struct {
	collector      Collector
	maxConcurrency int
	sink           progress.Sink
	logger         *slog.Logger
}

// Option は Aggregator の設定を行うための関数型です。
type Option func(*Aggregator)

// WithConcurrency はキーワード単位の同時実行数を設定します。
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.maxConcurrency = n }
}

// WithSink は進捗の通知先を設定します。
func WithSink(s progress.Sink) Option {
	return func(a *Aggregator) { a.sink = progress.OrDiscard(s) }
}

// WithLogger はロガーを設定します。
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New は Aggregator を初期化します。
func New(collector Collector, opts ...Option) (*Aggregator, error) {
	if collector == nil {
		return nil, fmt.Errorf("aggregate.New: collector cannot be nil")
	}
	a := &Aggregator{
		collector:      collector,
		maxConcurrency: DefaultConcurrency,
		sink:           progress.Discard,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxConcurrency <= 0 {
		a.maxConcurrency = DefaultConcurrency
	}
	if a.maxConcurrency > MaxConcurrency {
		a.maxConcurrency = MaxConcurrency
	}
	return a, nil
}

type keywordResult struct {
	keyword string
	counts  types.DailyCount
	err     error
}

// Run は keywords それぞれについて window 内の日別件数を収集し、日付、キーワードの順に並べた表を返します。
//
// window が不正な場合はリクエストを行わずに types.ErrInvalidWindow を返します。
// 有効なキーワードが1つもない場合は空の表を返し、エラーにはしません。
// ctx がキャンセルされた場合は、それまでに完了した分の表と ctx.Err() を含むエラーを返します。
func (a *Aggregator) Run(ctx context.Context, keywords []string, window types.Window) ([]types.ResultRow, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	targets := UniqueKeywords(keywords)
	if len(targets) == 0 {
		return []types.ResultRow{}, nil
	}

	start := time.Now()
	a.logger.Debug("収集を開始します", "keywords", len(targets), "window", window.String(), "concurrency", a.maxConcurrency)

	results := make([]keywordResult, len(targets))
	var wg sync.WaitGroup

	// バッファ付きチャネルをセマフォとして使用し、同時実行数を制限する
	semaphore := make(chan struct{}, a.maxConcurrency)

dispatch:
	for i, kw := range targets {
		results[i].keyword = kw

		// スロットの確保。maxConcurrency 件実行中の場合はここで待機する
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			for j := i; j < len(targets); j++ {
				results[j] = keywordResult{keyword: targets[j], err: ctx.Err()}
			}
			break dispatch
		}

		wg.Add(1)
		go func(idx int, keyword string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			sink := progress.Prefixed(keyword, a.sink)
			sink.Report("収集を開始します")
			counts, err := a.collector.Collect(ctx, keyword, window, sink)
			if err == nil {
				sink.Report(fmt.Sprintf("収集が完了しました (%d 件)", counts.Total()))
			}
			results[idx] = keywordResult{keyword: keyword, counts: counts, err: err}
		}(i, kw)
	}

	// すべてのキーワードが終わってからマージする
	wg.Wait()

	rows, err := merge(results)
	a.logger.Debug("収集が終了しました", "rows", len(rows), "elapsed", time.Since(start))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return rows, fmt.Errorf("収集が中断されました: %w", ctxErr)
	}
	return rows, err
}

// merge は各キーワードの件数を ResultRow に展開し、並べ替えます。
func merge(results []keywordResult) ([]types.ResultRow, error) {
	rows := []types.ResultRow{}
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("キーワード %q の収集に失敗しました: %w", r.keyword, r.err))
		}
		for iso, n := range r.counts {
			d, err := types.ParseDate(iso)
			if err != nil {
				errs = append(errs, fmt.Errorf("キーワード %q の日付キー %q が不正です: %w", r.keyword, iso, err))
				continue
			}
			rows = append(rows, types.ResultRow{Keyword: r.keyword, Date: d, Count: n})
		}
	}
	types.SortResultRows(rows)
	return rows, errors.Join(errs...)
}

// UniqueKeywords は前後の空白を取り除き、空文字と重複を除いたキーワードを入力順で返します。
func UniqueKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

// Options は CollectStatistics の実行設定です。
type Options struct {
	// MaxPages は Policy.MaxPages より優先されます。0 以下なら Policy の値を使います。
	MaxPages    int
	Timeouts    httpclient.Timeouts
	Policy      crawler.Policy
	Endpoint    page.Endpoint
	Selectors   listing.Selectors
	Retry       retry.Config
	Concurrency int

	// 以下は省略可能です。
	HTTPClient httpclient.Doer
	Recorder   crawler.Recorder
	Logger     *slog.Logger
	Clock      func() time.Time
	Location   *time.Location
}

// DefaultOptions はデフォルトの実行設定を返します。
func DefaultOptions() Options {
	return Options{
		Timeouts:    httpclient.DefaultTimeouts(),
		Policy:      crawler.DefaultPolicy(),
		Endpoint:    page.DefaultEndpoint(),
		Selectors:   listing.DefaultSelectors(),
		Retry:       retry.DefaultConfig(),
		Concurrency: DefaultConcurrency,
	}
}

// NewAggregator は opts からトランスポート、一覧の抽出、ページ取得、クローラーを組み立てます。
// トランスポートは全キーワードで共有されます。
func NewAggregator(opts Options, sink progress.Sink) (*Aggregator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := opts.Endpoint
	if endpoint.BaseURL == "" {
		endpoint = page.DefaultEndpoint()
	}

	retryCfg := opts.Retry
	if retryCfg.MaxAttempts <= 0 {
		retryCfg.MaxAttempts = retry.DefaultMaxAttempts
	}
	clientOpts := append(endpoint.HeaderOptions(), httpclient.WithRetryConfig(retryCfg))
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, httpclient.WithHTTPClient(opts.HTTPClient))
	}
	client := httpclient.New(opts.Timeouts, clientOpts...)

	fetcher, err := page.NewFetcher(client, listing.NewExtractor(opts.Selectors), endpoint)
	if err != nil {
		return nil, fmt.Errorf("ページ取得の初期化エラー: %w", err)
	}

	policy := opts.Policy
	if policy == (crawler.Policy{}) {
		policy = crawler.DefaultPolicy()
	}
	if opts.MaxPages > 0 {
		policy.MaxPages = opts.MaxPages
	}

	crawlerOpts := []crawler.Option{
		crawler.WithPolicy(policy),
		crawler.WithLogger(logger),
	}
	if opts.Recorder != nil {
		crawlerOpts = append(crawlerOpts, crawler.WithRecorder(opts.Recorder))
	}
	if opts.Clock != nil {
		crawlerOpts = append(crawlerOpts, crawler.WithClock(opts.Clock))
	}
	if opts.Location != nil {
		crawlerOpts = append(crawlerOpts, crawler.WithLocation(opts.Location))
	}
	c, err := crawler.New(fetcher, crawlerOpts...)
	if err != nil {
		return nil, fmt.Errorf("クローラーの初期化エラー: %w", err)
	}

	return New(c,
		WithConcurrency(opts.Concurrency),
		WithSink(sink),
		WithLogger(logger),
	)
}

// CollectStatistics は、keywords の window 内の投稿数を日別に集計した表を返します。
func CollectStatistics(ctx context.Context, keywords []string, window types.Window, opts Options, sink progress.Sink) ([]types.ResultRow, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	a, err := NewAggregator(opts, sink)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, keywords, window)
}
