package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/go-gallery-trend/pkg/httpclient"
	"github.com/shouni/go-gallery-trend/pkg/retry"
)

// --- グローバル定数 ---

const (
	appName = "gallery-trend"

	defaultReadTimeoutSec    = int(httpclient.DefaultReadTimeout / time.Second)
	defaultConnectTimeoutSec = int(httpclient.DefaultConnectTimeout / time.Second)
)

// --- グローバル変数とフラグ構造体 ---

// AppFlags はこのアプリケーション固有の永続フラグを保持
type AppFlags struct {
	TimeoutSec        int // --timeout 読み込みタイムアウト
	ConnectTimeoutSec int // --connect-timeout 接続タイムアウト
	MaxAttempts       int // --max-attempts 初回を含む試行回数
}

var Flags AppFlags

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().IntVar(
		&Flags.TimeoutSec,
		"timeout",
		defaultReadTimeoutSec,
		"HTTPレスポンスの読み込みタイムアウト（秒）",
	)
	rootCmd.PersistentFlags().IntVar(
		&Flags.ConnectTimeoutSec,
		"connect-timeout",
		defaultConnectTimeoutSec,
		"HTTP接続のタイムアウト（秒）",
	)
	rootCmd.PersistentFlags().IntVar(
		&Flags.MaxAttempts,
		"max-attempts",
		retry.DefaultMaxAttempts,
		"1ページあたりのHTTPリクエストの最大試行回数（初回を含む）",
	)
}

// initAppPreRunE は、clibase共通処理の後に実行される、アプリケーション固有のPersistentPreRunEです。
// NOTE: clibaseの PersistentPreRunE チェーンにより、clibase.Flags.Verbose はこの関数実行前に設定済み
func initAppPreRunE(cmd *cobra.Command, args []string) error {
	initSlog(clibase.Flags.Verbose)

	slog.Debug("HTTPクライアントの設定",
		"connect_timeout", timeouts().Connect,
		"read_timeout", timeouts().Read,
		"max_attempts", Flags.MaxAttempts,
	)
	return nil
}

// initSlog は標準エラー出力に色付きでログを出すロガーを既定にします。
func initSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

// timeouts は永続フラグから HTTP のタイムアウトを組み立てます。
// 0 以下の値はデフォルト値になります。
func timeouts() httpclient.Timeouts {
	t := httpclient.DefaultTimeouts()
	if Flags.ConnectTimeoutSec > 0 {
		t.Connect = time.Duration(Flags.ConnectTimeoutSec) * time.Second
	}
	if Flags.TimeoutSec > 0 {
		t.Read = time.Duration(Flags.TimeoutSec) * time.Second
	}
	return t
}

// --- エントリポイント ---

// Execute は、clibase を使ってルートコマンドとサブコマンドを実行します。
func Execute() {
	clibase.Execute(
		appName,
		addAppPersistentFlags,
		initAppPreRunE,
		collectCmd,
		inspectCmd,
		dateCmd,
	)
}
