// Package progress は、収集の進捗を外部へ通知するための受け口を定義します。
package progress

import (
	"log/slog"
)

// Sink は進捗メッセージの受け取り手です。呼び出し側をブロックしない実装であることが前提です。
type Sink interface {
	Report(message string)
}

// SinkFunc は関数を Sink として扱うためのアダプターです。
type SinkFunc func(message string)

func (f SinkFunc) Report(message string) { f(message) }

type discard struct{}

func (discard) Report(string) {}

// Discard はすべてのメッセージを捨てる Sink です。
var Discard Sink = discard{}

// OrDiscard は s が nil の場合に Discard を返します。
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

type logSink struct {
	logger *slog.Logger
}

// NewLogSink は、メッセージを Info レベルで出力する Sink を返します。logger が nil の場合は slog.Default() を使います。
func NewLogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &logSink{logger: logger}
}

func (s *logSink) Report(message string) {
	s.logger.Info(message)
}

type prefixed struct {
	keyword string
	next    Sink
}

// Prefixed は、メッセージの先頭に "[keyword] " を付けて next に渡します。
// キーワード単位で並列実行しても、どのキーワードの進捗かを区別できます。
func Prefixed(keyword string, next Sink) Sink {
	return &prefixed{keyword: keyword, next: OrDiscard(next)}
}

func (p *prefixed) Report(message string) {
	p.next.Report("[" + p.keyword + "] " + message)
}
