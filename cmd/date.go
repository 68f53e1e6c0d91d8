package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-gallery-trend/pkg/postdate"
	"github.com/shouni/go-gallery-trend/pkg/types"
)

var todayFlag string

// normalizeLines は各行の日付表示を正規化し、「入力<TAB>結果」の形式で w に書き出します。
// 認識できない行の結果は "-" です。
func normalizeLines(w io.Writer, inputs []string, today types.Date) error {
	for _, in := range inputs {
		out := "-"
		if d, ok := postdate.Normalize(in, today); ok {
			out = d.String()
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", in, out); err != nil {
			return err
		}
	}
	return nil
}

var dateCmd = &cobra.Command{
	Use:   "date [TEXT...]",
	Short: "掲示板の日付表示を YYYY-MM-DD に正規化します",
	Long: `引数、または標準入力の各行を掲示板の日付表示として解釈し、正規化した日付を表示します。
"오늘" や "14:32" は今日、"어제" は前日、"03.01" のような月日のみの表示は今日の年として扱います。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		today, err := configuredToday(configPath, time.Now())
		if err != nil {
			return err
		}
		if todayFlag != "" {
			d, err := types.ParseDate(todayFlag)
			if err != nil {
				return fmt.Errorf("--today の日付が不正です: %w", err)
			}
			today = d
		}

		inputs := args
		if len(inputs) == 0 {
			slog.Debug("引数がないため、標準入力から読み込みます")
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" {
					inputs = append(inputs, line)
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("標準入力の読み取りエラー: %w", err)
			}
		}

		return normalizeLines(cmd.OutOrStdout(), inputs, today)
	},
}

func init() {
	dateCmd.Flags().StringVar(&todayFlag, "today", "", "基準にする今日の日付 (YYYY-MM-DD、既定は設定のタイムゾーンにおける今日)")
	dateCmd.Flags().StringVar(&configPath, "config", "", "YAML 設定ファイルのパス (logic.timezone を今日の判定に使用)")
}
