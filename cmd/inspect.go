package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/shouni/go-gallery-trend/pkg/httpclient"
	"github.com/shouni/go-gallery-trend/pkg/listing"
	"github.com/shouni/go-gallery-trend/pkg/page"
	"github.com/shouni/go-gallery-trend/pkg/postdate"
)

var (
	inspectKeyword string
	inspectPage    int
	inspectBoard   string
)

// runInspect は1ページだけ取得し、各行の日付とその正規化結果を表示します。
// 選択子や日付形式がソースの表示と合っているかを確認するためのものです。
func runInspect(ctx context.Context, cmd *cobra.Command) error {
	endpoint := page.DefaultEndpoint()
	endpoint.BoardID = inspectBoard

	client := httpclient.New(timeouts(),
		append(endpoint.HeaderOptions(), httpclient.WithMaxAttempts(Flags.MaxAttempts))...)
	fetcher, err := page.NewFetcher(client, listing.NewExtractor(listing.DefaultSelectors()), endpoint)
	if err != nil {
		return fmt.Errorf("ページ取得の初期化エラー: %w", err)
	}

	slog.Info("ページを取得します", "board", inspectBoard, "keyword", inspectKeyword, "page", inspectPage)
	out := fetcher.Fetch(ctx, inspectKeyword, inspectPage)
	if out.Kind != page.Success {
		return fmt.Errorf("ページ %d の取得結果: %s (ステータス %d): %w", inspectPage, out.Kind, out.StatusCode, out.Reason)
	}

	today, err := configuredToday(configPath, time.Now())
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"#", "表示", "title", "正規化"})
	recognized := 0
	for i, row := range out.Rows {
		normalized := "-"
		if d, ok := postdate.Normalize(row.RawDate(), today); ok {
			normalized = d.String()
			recognized++
		}
		t.AppendRow(table.Row{i + 1, row.DateText, row.DateTitle, normalized})
	}
	t.AppendFooter(table.Row{"", "", "認識", fmt.Sprintf("%d / %d", recognized, len(out.Rows))})
	t.Render()
	return nil
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "検索結果の1ページを取得し、日付の認識結果を表示します",
	Long:  `指定したキーワードとページ番号の検索結果を1ページだけ取得し、各行の日付表示と正規化後の日付を表で表示します。`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectKeyword == "" {
			return fmt.Errorf("--keyword を指定してください")
		}
		if inspectPage < 1 {
			return fmt.Errorf("--page は 1 以上である必要があります: %d", inspectPage)
		}
		overall := timeouts().Connect + timeouts().Read
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(Flags.MaxAttempts+1)*overall)
		defer cancel()
		return runInspect(ctx, cmd)
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectKeyword, "keyword", "k", "", "検索キーワード")
	inspectCmd.Flags().IntVarP(&inspectPage, "page", "p", 1, "ページ番号")
	inspectCmd.Flags().StringVar(&inspectBoard, "board", page.DefaultBoardID, "ギャラリーID")
	inspectCmd.Flags().StringVar(&configPath, "config", "", "YAML 設定ファイルのパス (logic.timezone を今日の判定に使用)")
}
