// Package postdate は、掲示板一覧の日付セルに現れる表記を暦日に正規化します。
package postdate

import (
	"strings"
	"time"

	"github.com/shouni/go-gallery-trend/pkg/types"
)

const (
	// TodayToken は当日を表す表記です。
	TodayToken = "오늘"
	// YesterdayToken は前日を表す表記です。
	YesterdayToken = "어제"
)

// ParseFunc は1つの日付表記を試すパース関数です。today は年を補完する場合に使います。
type ParseFunc func(text string, today types.Date) (types.Date, bool)

// Layout は、time パッケージのレイアウトから ParseFunc を生成します。
// 年を含まないレイアウトでは today の年で補完します。
func Layout(layout string) ParseFunc {
	hasYear := strings.Contains(layout, "06")
	return func(text string, today types.Date) (types.Date, bool) {
		t, err := time.Parse(layout, text)
		if err != nil {
			return types.Date{}, false
		}
		if hasYear {
			return types.DateOf(t), true
		}
		d := types.NewDate(today.Year, t.Month(), t.Day())
		// 2/29 が平年に当たる場合、3/1 に繰り上げず認識不可とする
		if d.Month != t.Month() || d.Day != t.Day() {
			return types.Date{}, false
		}
		return d, true
	}
}

// defaultLayouts は詳細な表記から順に並べる。短いレイアウトが長い表記の先頭に一致しないようにするため。
var defaultLayouts = []ParseFunc{
	Layout("2006.1.2"),
	Layout("2006-1-2"),
	Layout("06.1.2"),
	Layout("1.2"),
	Layout("1/2"),
}

// Normalizer は日付表記の解決順序を保持します。
type Normalizer struct {
	parsers []ParseFunc
}

// New はデフォルトのレイアウト表を持つ Normalizer を返します。
func New() *Normalizer {
	return &Normalizer{parsers: append([]ParseFunc(nil), defaultLayouts...)}
}

// WithLayouts は、既定の表の後ろに追加のパース関数を連結した Normalizer を返します。
func (n *Normalizer) WithLayouts(extra ...ParseFunc) *Normalizer {
	parsers := make([]ParseFunc, 0, len(n.parsers)+len(extra))
	parsers = append(parsers, n.parsers...)
	parsers = append(parsers, extra...)
	return &Normalizer{parsers: parsers}
}

// Normalize は一覧の日付表記を暦日に変換します。認識できない場合は false を返します。
//
// 解決順序: 当日表記、前日表記、時刻のみの表記 (":" を含む) を数値パースより先に判定し、
// その後レイアウト表を先頭から試して最初に成功したものを採用します。
func (n *Normalizer) Normalize(text string, today types.Date) (types.Date, bool) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, " "); i >= 0 {
		text = text[:i]
	}

	switch {
	case text == TodayToken:
		return today, true
	case text == YesterdayToken:
		return today.AddDays(-1), true
	case strings.Contains(text, ":"):
		return today, true
	}

	for _, parse := range n.parsers {
		if d, ok := parse(text, today); ok {
			return d, true
		}
	}
	return types.Date{}, false
}

var std = New()

// Normalize はデフォルトの Normalizer で text を変換します。
func Normalize(text string, today types.Date) (types.Date, bool) {
	return std.Normalize(text, today)
}
