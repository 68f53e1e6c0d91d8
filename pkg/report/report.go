// Package report は、集計結果を日付×キーワードの表にして出力します。
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shouni/go-gallery-trend/pkg/types"
)

// EmptyNotice は集計結果が空のときに表示するメッセージです。
const EmptyNotice = "期間内に該当する投稿が見つかりませんでした。最大ページ数を増やすか、別のキーワードを試してください。"

const (
	dateHeader  = "日付"
	totalHeader = "合計"
)

// Format は出力形式です。
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatTSV      Format = "tsv"
	FormatMarkdown Format = "markdown"
)

// Formats は対応している出力形式の一覧です。
var Formats = []Format{FormatTable, FormatCSV, FormatTSV, FormatMarkdown}

// ParseFormat は文字列を Format に変換します。大文字小文字は区別しません。
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("未対応の出力形式です: %q (table, csv, tsv, markdown のいずれか)", s)
}

// Pivot は行が日付、列がキーワードの件数表です。該当のない組み合わせは 0 です。
type Pivot struct {
	Keywords []string
	Dates    []types.Date
	// Counts[i][j] は Dates[i] における Keywords[j] の件数です。
	Counts [][]int
}

// NewPivot は rows から Pivot を作ります。
// 列は keywords の順で、rows にだけ現れるキーワードは末尾に追加されます。日付は昇順です。
func NewPivot(rows []types.ResultRow, keywords []string) Pivot {
	p := Pivot{}
	col := make(map[string]int)
	addKeyword := func(kw string) {
		if _, ok := col[kw]; ok {
			return
		}
		col[kw] = len(p.Keywords)
		p.Keywords = append(p.Keywords, kw)
	}
	for _, kw := range keywords {
		addKeyword(kw)
	}

	sorted := make([]types.ResultRow, len(rows))
	copy(sorted, rows)
	types.SortResultRows(sorted)

	rowIndex := make(map[types.Date]int)
	for _, r := range sorted {
		addKeyword(r.Keyword)
		if _, ok := rowIndex[r.Date]; !ok {
			rowIndex[r.Date] = len(p.Dates)
			p.Dates = append(p.Dates, r.Date)
		}
	}

	p.Counts = make([][]int, len(p.Dates))
	for i := range p.Counts {
		p.Counts[i] = make([]int, len(p.Keywords))
	}
	for _, r := range sorted {
		p.Counts[rowIndex[r.Date]][col[r.Keyword]] += r.Count
	}
	return p
}

// Empty は件数のある日付が1つもない場合に true を返します。
func (p Pivot) Empty() bool {
	return len(p.Dates) == 0
}

// Totals はキーワードごとの合計件数を列の順で返します。
func (p Pivot) Totals() []int {
	totals := make([]int, len(p.Keywords))
	for _, row := range p.Counts {
		for j, n := range row {
			totals[j] += n
		}
	}
	return totals
}

// header は表の見出し行を返します。
func (p Pivot) header() []string {
	return append([]string{dateHeader}, p.Keywords...)
}

// Render は p を format で w に書き出します。
// 結果が空の場合、table 形式では EmptyNotice を、それ以外の形式では見出し行のみを出力します。
func Render(w io.Writer, p Pivot, format Format) error {
	if p.Empty() && format == FormatTable {
		_, err := fmt.Fprintln(w, EmptyNotice)
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(toRow(p.header()))
	for i, d := range p.Dates {
		row := table.Row{d.String()}
		for _, n := range p.Counts[i] {
			row = append(row, n)
		}
		t.AppendRow(row)
	}

	switch format {
	case FormatTable:
		t.SetStyle(table.StyleRounded)
		// キーワードを大文字に変換しない
		t.Style().Format.Header = text.FormatDefault
		t.Style().Format.Footer = text.FormatDefault
		footer := table.Row{totalHeader}
		for _, n := range p.Totals() {
			footer = append(footer, n)
		}
		t.AppendFooter(footer)
		t.Render()
	case FormatCSV:
		t.RenderCSV()
	case FormatTSV:
		t.RenderTSV()
	case FormatMarkdown:
		t.RenderMarkdown()
	default:
		return fmt.Errorf("未対応の出力形式です: %q", format)
	}
	return nil
}

func toRow(values []string) table.Row {
	row := make(table.Row, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
