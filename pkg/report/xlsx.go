package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetName は書き出すワークシートの名前です。
const SheetName = "counts"

// newWorkbook は p を1枚のシートに書き込んだワークブックを返します。
func newWorkbook(p Pivot) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("シート名の設定に失敗しました: %w", err)
	}

	set := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(SheetName, cell, v)
	}

	for j, h := range p.header() {
		if err := set(j+1, 1, h); err != nil {
			f.Close()
			return nil, fmt.Errorf("見出しの書き込みに失敗しました: %w", err)
		}
	}
	for i, d := range p.Dates {
		if err := set(1, i+2, d.String()); err != nil {
			f.Close()
			return nil, fmt.Errorf("日付の書き込みに失敗しました: %w", err)
		}
		for j, n := range p.Counts[i] {
			if err := set(j+2, i+2, n); err != nil {
				f.Close()
				return nil, fmt.Errorf("件数の書き込みに失敗しました: %w", err)
			}
		}
	}
	if !p.Empty() {
		last := len(p.Dates) + 2
		if err := set(1, last, totalHeader); err != nil {
			f.Close()
			return nil, err
		}
		for j, n := range p.Totals() {
			if err := set(j+2, last, n); err != nil {
				f.Close()
				return nil, err
			}
		}
	}
	return f, nil
}

// WriteXLSX は p を .xlsx 形式で w に書き出します。
func WriteXLSX(w io.Writer, p Pivot) error {
	f, err := newWorkbook(p)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx の書き出しに失敗しました: %w", err)
	}
	return nil
}

// SaveXLSX は p を path に .xlsx として保存します。
func SaveXLSX(path string, p Pivot) error {
	f, err := newWorkbook(p)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx ファイル %s の保存に失敗しました: %w", path, err)
	}
	return nil
}
