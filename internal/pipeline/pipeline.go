package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-gallery-trend/internal/config"
	"github.com/shouni/go-gallery-trend/pkg/aggregate"
	"github.com/shouni/go-gallery-trend/pkg/crawler"
	"github.com/shouni/go-gallery-trend/pkg/progress"
	"github.com/shouni/go-gallery-trend/pkg/report"
	"github.com/shouni/go-gallery-trend/pkg/types"
)

// ResolveWindow は --from/--to/--days の組み合わせから集計期間を決めます。
// from と to が空の場合は、今日を含む直近 days 日です。to だけが空の場合は今日までです。
// from だけが空の場合は to を含む直近 days 日です。
func ResolveWindow(from, to string, days int, today types.Date) (types.Window, error) {
	if days <= 0 {
		days = config.DefaultDays
	}

	end := today
	if to != "" {
		d, err := types.ParseDate(to)
		if err != nil {
			return types.Window{}, fmt.Errorf("--to の日付が不正です: %w", err)
		}
		end = d
	}

	w := types.LastDays(end, days)
	if from != "" {
		d, err := types.ParseDate(from)
		if err != nil {
			return types.Window{}, fmt.Errorf("--from の日付が不正です: %w", err)
		}
		w.Start = d
	}
	if err := w.Validate(); err != nil {
		return types.Window{}, err
	}
	return w, nil
}

// Params は1回の集計の入力です。
type Params struct {
	Config   *config.Config
	Window   types.Window
	Sink     progress.Sink
	Recorder crawler.Recorder
	Logger   *slog.Logger
	// Clock は省略可能です。
	Clock func() time.Time
}

// Result は集計結果です。
type Result struct {
	Rows  []types.ResultRow
	Pivot report.Pivot
}

// Run は設定に従ってキーワードごとの収集を実行し、表にまとめた結果を返します。
// 中断された場合も、それまでの結果とエラーを返します。
func Run(ctx context.Context, p Params) (*Result, error) {
	if p.Config == nil {
		p.Config = config.Default()
	}
	opts, err := p.Config.Options()
	if err != nil {
		return nil, fmt.Errorf("設定の変換エラー: %w", err)
	}
	opts.Recorder = p.Recorder
	opts.Logger = p.Logger
	opts.Clock = p.Clock

	keywords := aggregate.UniqueKeywords(p.Config.Keywords)
	rows, err := aggregate.CollectStatistics(ctx, keywords, p.Window, opts, p.Sink)
	if rows == nil && err != nil {
		return nil, fmt.Errorf("集計エラー: %w", err)
	}

	res := &Result{Rows: rows, Pivot: report.NewPivot(rows, keywords)}
	if err != nil {
		return res, fmt.Errorf("集計エラー: %w", err)
	}
	return res, nil
}
