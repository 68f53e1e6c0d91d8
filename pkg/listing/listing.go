// Package listing は、掲示板の検索結果ページから一覧の行を抽出します。
package listing

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	textUtils "github.com/shouni/go-utils/text"
	"golang.org/x/net/html/charset"
)

const (
	// DefaultRowSelector は一覧の1投稿に対応する行のセレクターです。
	DefaultRowSelector = "tr.ub-content"
	// DefaultDateSelector は行内の日付セルのセレクターです。
	DefaultDateSelector = ".gall_date"
)

// Row は一覧の1行です。日付セルの表示テキストと title 属性 (完全な日時) を保持します。
type Row struct {
	DateText  string
	DateTitle string
}

// RawDate は日付の正規化に使う文字列を返します。表示テキストが空の場合は title 属性を使います。
// 日付セルがない行では空文字です。
func (r Row) RawDate() string {
	if r.DateText != "" {
		return r.DateText
	}
	return r.DateTitle
}

// Selectors は行と日付セルのCSSセレクターです。
type Selectors struct {
	Row  string
	Date string
}

// DefaultSelectors はデフォルトのセレクターを返します。
func DefaultSelectors() Selectors {
	return Selectors{Row: DefaultRowSelector, Date: DefaultDateSelector}
}

// Extractor は HTML ボディから Row を抽出します。
type Extractor struct {
	selectors Selectors
}

// NewExtractor は、新しいExtractorのインスタンスを生成します。空のセレクターはデフォルト値で補完されます。
func NewExtractor(selectors Selectors) *Extractor {
	if selectors.Row == "" {
		selectors.Row = DefaultRowSelector
	}
	if selectors.Date == "" {
		selectors.Date = DefaultDateSelector
	}
	return &Extractor{selectors: selectors}
}

// Extract は body を contentType の文字コードから UTF-8 に変換して解析し、一覧の行を返します。
// 一覧の構造が存在しない場合は空のスライスを返します。日付セルを持たない行は空の Row になります。
func (e *Extractor) Extract(body io.Reader, contentType string) ([]Row, error) {
	utf8Body, err := charset.NewReader(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("文字コードの変換に失敗しました: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(utf8Body)
	if err != nil {
		return nil, fmt.Errorf("HTML解析に失敗しました: %w", err)
	}

	return e.extractRows(doc), nil
}

// ExtractBytes は Extract のバイト列版です。
func (e *Extractor) ExtractBytes(body []byte, contentType string) ([]Row, error) {
	return e.Extract(bytes.NewReader(body), contentType)
}

func (e *Extractor) extractRows(doc *goquery.Document) []Row {
	rows := []Row{}
	doc.Find(e.selectors.Row).Each(func(i int, s *goquery.Selection) {
		cell := s.Find(e.selectors.Date).First()
		if cell.Length() == 0 {
			rows = append(rows, Row{})
			return
		}
		title, _ := cell.Attr("title")
		rows = append(rows, Row{
			DateText:  strings.TrimSpace(textUtils.NormalizeText(cell.Text())),
			DateTitle: strings.TrimSpace(title),
		})
	})
	return rows
}
