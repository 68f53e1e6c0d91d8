package types

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidWindow は、開始日が終了日より後の期間が指定された場合に返されます。
var ErrInvalidWindow = errors.New("無効な集計期間です: 開始日が終了日より後になっています")

const isoLayout = "2006-01-02"

// Date は時刻を持たない暦日です。== で比較できます。
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate は年月日から Date を生成します。範囲外の値は time.Date と同様に正規化されます。
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf は time.Time のロケーション上の暦日を返します。
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate は "2006-01-02" 形式の文字列を Date に変換します。
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("日付のパースに失敗しました (%s): %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays は n 日後 (負なら n 日前) の日付を返します。
func (d Date) AddDays(n int) Date {
	return DateOf(d.time().AddDate(0, 0, n))
}

// Compare は d が other より前なら -1、同じなら 0、後なら +1 を返します。
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }
func (d Date) After(other Date) bool  { return d.Compare(other) > 0 }

// IsZero は値が未設定かどうかを返します。
func (d Date) IsZero() bool { return d == Date{} }

// String は ISO 形式 (YYYY-MM-DD) を返します。DailyCount のキーにも使われます。
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Window は [Start, End] の両端を含む集計期間です。
type Window struct {
	Start Date
	End   Date
}

// LastDays は today を含む直近 n 日間の期間を返します。
func LastDays(today Date, n int) Window {
	if n < 1 {
		n = 1
	}
	return Window{Start: today.AddDays(-(n - 1)), End: today}
}

// Validate は Start <= End を検証します。
func (w Window) Validate() error {
	if w.Start.After(w.End) {
		return fmt.Errorf("%w (%s > %s)", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// Contains は d が期間内にあるかどうかを返します。
func (w Window) Contains(d Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return w.Start.String() + " ~ " + w.End.String()
}

// DailyCount は ISO 日付をキーとするキーワード単位の日別件数です。
type DailyCount map[string]int

// Keys は日付キーを時系列順に返します。
func (c DailyCount) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Total は全日付の合計件数です。
func (c DailyCount) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// ResultRow は集計表の1行 (キーワード, 日付, 件数) です。
type ResultRow struct {
	Keyword string
	Date    Date
	Count   int
}

// SortResultRows は日付、キーワードの順に安定ソートします。
func SortResultRows(rows []ResultRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].Date.Compare(rows[j].Date); c != 0 {
			return c < 0
		}
		return rows[i].Keyword < rows[j].Keyword
	})
}
