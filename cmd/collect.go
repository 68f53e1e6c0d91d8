package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-gallery-trend/internal/config"
	"github.com/shouni/go-gallery-trend/internal/pipeline"
	"github.com/shouni/go-gallery-trend/pkg/aggregate"
	"github.com/shouni/go-gallery-trend/pkg/crawler"
	"github.com/shouni/go-gallery-trend/pkg/metrics"
	"github.com/shouni/go-gallery-trend/pkg/progress"
	"github.com/shouni/go-gallery-trend/pkg/report"
	"github.com/shouni/go-gallery-trend/pkg/types"
)

// collect コマンドのフラグ
var (
	keywords    []string
	fromDate    string
	toDate      string
	days        int
	maxPages    int
	concurrency int
	boardID     string
	format      string
	xlsxPath    string
	metricsAddr string
	configPath  string
)

// loadConfig は --config の設定ファイルを読み込みます。未指定の場合はデフォルト設定を返します。
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

// configuredToday は設定ファイルのタイムゾーンにおける now の日付を返します。
func configuredToday(path string, now time.Time) (types.Date, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return types.Date{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return types.Date{}, err
	}
	return types.DateOf(now.In(loc)), nil
}

// buildConfig は設定ファイルを読み込み、明示的に指定されたフラグで上書きします。
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("keywords") {
		cfg.Keywords = keywords
	}
	if flags.Changed("days") {
		cfg.Logic.Days = days
	}
	if flags.Changed("max-pages") {
		cfg.Logic.MaxPages = maxPages
	}
	if flags.Changed("concurrency") {
		cfg.Logic.Concurrency = concurrency
	}
	if flags.Changed("board") {
		cfg.Source.BoardID = boardID
	}
	if flags.Changed("timeout") {
		cfg.Logic.ReadTimeoutSec = Flags.TimeoutSec
	}
	if flags.Changed("connect-timeout") {
		cfg.Logic.ConnectTimeoutSec = Flags.ConnectTimeoutSec
	}
	if flags.Changed("max-attempts") {
		cfg.Logic.MaxAttempts = Flags.MaxAttempts
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

// runCollect は集計を実行し、結果を出力します。
func runCollect(ctx context.Context, cmd *cobra.Command, cfg *config.Config, outFormat report.Format) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	today := types.DateOf(time.Now().In(loc))
	window, err := pipeline.ResolveWindow(fromDate, toDate, cfg.Logic.Days, today)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	if metricsAddr != "" {
		go func() {
			if err := collector.Serve(ctx, metricsAddr); err != nil {
				slog.Error("メトリクスサーバーの起動に失敗しました", "addr", metricsAddr, "error", err)
			}
		}()
	}

	slog.Info("集計を開始します",
		"keywords", aggregate.UniqueKeywords(cfg.Keywords),
		"window", window.String(),
		"max_pages", cfg.Logic.MaxPages,
		"board", cfg.Source.BoardID,
	)

	res, runErr := pipeline.Run(ctx, pipeline.Params{
		Config:   cfg,
		Window:   window,
		Sink:     progress.NewLogSink(slog.Default()),
		Recorder: collector,
		Logger:   slog.Default(),
	})
	if res == nil {
		return runErr
	}
	if runErr != nil {
		slog.Warn("集計が途中で終了しました。取得できた分のみ出力します", "error", runErr)
	}

	if err := report.Render(cmd.OutOrStdout(), res.Pivot, outFormat); err != nil {
		return fmt.Errorf("結果の出力に失敗しました: %w", err)
	}
	if xlsxPath != "" {
		if err := report.SaveXLSX(xlsxPath, res.Pivot); err != nil {
			return err
		}
		slog.Info("xlsx ファイルを保存しました", "path", xlsxPath)
	}
	return runErr
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "キーワードごとの投稿数を日別に集計します",
	Long: `ギャラリーの検索結果をページ順に取得し、指定期間内の投稿数をキーワードと日付ごとに集計します。
期間は --from/--to または --days で指定します (既定は今日を含む直近7日間)。
Ctrl+C で中断した場合は、それまでに集計できた分を出力します。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		outFormat, err := report.ParseFormat(format)
		if err != nil {
			return err
		}
		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runCollect(ctx, cmd, cfg, outFormat)
	},
}

func init() {
	collectCmd.Flags().StringSliceVarP(&keywords, "keywords", "k", config.DefaultKeywords,
		"検索キーワード (カンマ区切りまたは複数指定)")
	collectCmd.Flags().StringVar(&fromDate, "from", "", "集計開始日 (YYYY-MM-DD)")
	collectCmd.Flags().StringVar(&toDate, "to", "", "集計終了日 (YYYY-MM-DD、既定は今日)")
	collectCmd.Flags().IntVar(&days, "days", config.DefaultDays, "--from を省略した場合の集計日数 (終了日を含む)")
	collectCmd.Flags().IntVar(&maxPages, "max-pages", crawler.DefaultMaxPages, "キーワードごとの最大ページ数")
	collectCmd.Flags().IntVarP(&concurrency, "concurrency", "c", aggregate.DefaultConcurrency,
		fmt.Sprintf("キーワード単位の並列実行数 (最大 %d)", aggregate.MaxConcurrency))
	collectCmd.Flags().StringVar(&boardID, "board", config.Default().Source.BoardID, "ギャラリーID")
	collectCmd.Flags().StringVarP(&format, "format", "f", string(report.FormatTable), "出力形式 (table, csv, tsv, markdown)")
	collectCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "集計結果を保存する .xlsx ファイルのパス")
	collectCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus メトリクスを公開するアドレス (例: :9090)")
	collectCmd.Flags().StringVar(&configPath, "config", "", "YAML 設定ファイルのパス")
}
