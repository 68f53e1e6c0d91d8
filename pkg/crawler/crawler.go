// Package crawler は、1つのキーワードについて検索結果をページ順に取得し、集計期間内の投稿数を日別に数えます。
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/shouni/go-gallery-trend/pkg/listing"
	"github.com/shouni/go-gallery-trend/pkg/page"
	"github.com/shouni/go-gallery-trend/pkg/postdate"
	"github.com/shouni/go-gallery-trend/pkg/progress"
	"github.com/shouni/go-gallery-trend/pkg/types"
)

const (
	DefaultMaxPages     = 50
	DefaultPageDelay    = 500 * time.Millisecond
	DefaultFailurePause = 1 * time.Second
	DefaultTimezone     = "Asia/Seoul"
)

// PageFetcher は1ページ分の取得結果を返します。*page.Fetcher が満たします。
type PageFetcher interface {
	Fetch(ctx context.Context, keyword string, pageNumber int) page.Outcome
}

// Recorder はページ単位の結果を受け取る計測の受け口です。
type Recorder interface {
	ObservePage(keyword string, kind page.Kind)
	ObserveMatched(keyword string, n int)
}

type noopRecorder struct{}

func (noopRecorder) ObservePage(string, page.Kind) {}
func (noopRecorder) ObserveMatched(string, int)    {}

// Policy はページ送りの上限と待機時間です。
type Policy struct {
	MaxPages     int           `yaml:"max_pages"`
	PageDelay    time.Duration `yaml:"page_delay"`
	FailurePause time.Duration `yaml:"failure_pause"`
}

// DefaultPolicy はデフォルトのポリシーを返します。
func DefaultPolicy() Policy {
	return Policy{
		MaxPages:     DefaultMaxPages,
		PageDelay:    DefaultPageDelay,
		FailurePause: DefaultFailurePause,
	}
}

// Crawler は1キーワード分のページ送りと集計を行います。
// Collect は複数のゴルーチンから同時に呼び出せますが、1回の Collect の中ではページを順番に1つずつ取得します。
type Crawler struct {
	fetcher    PageFetcher
	normalizer *postdate.Normalizer
	policy     Policy
	now        func() time.Time
	location   *time.Location
	recorder   Recorder
	logger     *slog.Logger
}

// Option は Crawler の設定を行うための関数型です。
type Option func(*Crawler)

// WithPolicy はページ送りのポリシーを設定します。MaxPages が 0 以下の場合はデフォルト値を使います。
func WithPolicy(p Policy) Option {
	return func(c *Crawler) {
		if p.MaxPages <= 0 {
			p.MaxPages = DefaultMaxPages
		}
		c.policy = p
	}
}

// WithClock は「今日」の算出に使う時計を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

// WithLocation は「今日」を判定するタイムゾーンを設定します。
func WithLocation(loc *time.Location) Option {
	return func(c *Crawler) { c.location = loc }
}

// WithNormalizer は日付の正規化ルールを差し替えます。
func WithNormalizer(n *postdate.Normalizer) Option {
	return func(c *Crawler) { c.normalizer = n }
}

// WithRecorder はメトリクスの記録先を設定します。
func WithRecorder(r Recorder) Option {
	return func(c *Crawler) { c.recorder = r }
}

// WithLogger はロガーを設定します。
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) { c.logger = l }
}

// New は、新しい Crawler を生成します。
func New(fetcher PageFetcher, opts ...Option) (*Crawler, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("crawler.New: fetcher cannot be nil")
	}
	c := &Crawler{
		fetcher:    fetcher,
		normalizer: postdate.New(),
		policy:     DefaultPolicy(),
		now:        time.Now,
		location:   DefaultLocation(),
		recorder:   noopRecorder{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DefaultLocation は掲示板の表示に使われるタイムゾーン (KST) を返します。
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Collect は keyword の検索結果を1ページ目から順に取得し、window 内の投稿数を日別に数えます。
//
// リトライ可能な失敗のページは読み飛ばし、一覧の行がないページに到達するか、
// ページ内の最も古い投稿が window.Start より前になった時点で終了します。
// 一覧は新しい順に並んでいることを前提とします。
//
// ctx がキャンセルされた場合は、それまでに集計した件数と ctx.Err() を返します。
// 返される DailyCount は nil になりません。
func (c *Crawler) Collect(ctx context.Context, keyword string, window types.Window, sink progress.Sink) (types.DailyCount, error) {
	counts := types.DailyCount{}
	if err := window.Validate(); err != nil {
		return counts, err
	}
	sink = progress.OrDiscard(sink)

	today := types.DateOf(c.now().In(c.location))
	limiter := rate.NewLimiter(rate.Every(c.policy.PageDelay), 1)
	maxPages := c.policy.MaxPages

	for p := 1; p <= maxPages; p++ {
		// ページ間の待機。キャンセルの確認もここで行う
		if err := limiter.Wait(ctx); err != nil {
			return counts, err
		}

		sink.Report(fmt.Sprintf("ページ %d を収集中...", p))
		out := c.fetcher.Fetch(ctx, keyword, p)
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		c.recorder.ObservePage(keyword, out.Kind)

		switch out.Kind {
		case page.RetryableFailure:
			sink.Report(fmt.Sprintf("ページ %d の取得に失敗しました。次のページへ進みます: %v", p, out.Reason))
			if p < maxPages {
				if err := sleep(ctx, c.policy.FailurePause); err != nil {
					return counts, err
				}
			}
			continue
		case page.FatalFailure:
			sink.Report(fmt.Sprintf("ページ %d に一覧の行がありません。収集を終了します: %v", p, out.Reason))
			return counts, nil
		}

		matched, oldest, seen := c.tally(keyword, out.Rows, window, today, counts)
		c.recorder.ObserveMatched(keyword, matched)
		c.logger.Debug("ページを集計しました", "keyword", keyword, "page", p, "rows", len(out.Rows), "matched", matched)

		if seen && oldest.Before(window.Start) {
			sink.Report(fmt.Sprintf("ページ %d で期間開始日 (%s) より前の投稿に到達しました。収集を終了します", p, window.Start))
			return counts, nil
		}
	}

	sink.Report(fmt.Sprintf("最大ページ数 (%d) に到達しました", maxPages))
	return counts, nil
}

// tally はページ内の各行を正規化し、期間内の行を counts に加算します。
// 加算した件数と、認識できた日付の最小値を返します。seen が false の場合は認識できた日付がありません。
func (c *Crawler) tally(keyword string, rows []listing.Row, window types.Window, today types.Date, counts types.DailyCount) (matched int, oldest types.Date, seen bool) {
	for _, row := range rows {
		raw := row.RawDate()
		if raw == "" {
			continue
		}
		d, ok := c.normalizer.Normalize(raw, today)
		if !ok {
			c.logger.Debug("日付を認識できない行をスキップしました", "keyword", keyword, "text", raw)
			continue
		}

		if !seen || d.Before(oldest) {
			oldest = d
			seen = true
		}
		if !window.Contains(d) {
			continue
		}
		counts[d.String()]++
		matched++
	}
	return matched, oldest, seen
}

// sleep は d だけ待機します。ctx がキャンセルされた場合は即座に ctx.Err() を返します。
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
