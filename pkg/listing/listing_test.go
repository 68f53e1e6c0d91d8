package listing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<html><head><meta charset="utf-8"><title>피자 갤러리</title></head><body>
<table class="gall_list"><tbody>
  <tr class="ub-content us-post"><td class="gall_tit">공지</td></tr>
  <tr class="ub-content us-post"><td class="gall_tit">글1</td><td class="gall_date" title="2024-03-07 14:32:10">14:32</td></tr>
  <tr class="ub-content us-post"><td class="gall_tit">글2</td><td class="gall_date" title="2024-03-01 09:00:00">
      03.01
  </td></tr>
  <tr class="ub-content us-post"><td class="gall_tit">글3</td><td class="gall_date" title="2023-12-25 10:00:00"></td></tr>
  <tr class="other"><td class="gall_date">99.99</td></tr>
</tbody></table>
</body></html>`

func TestExtract(t *testing.T) {
	e := NewExtractor(Selectors{})

	rows, err := e.Extract(strings.NewReader(listingPage), "text/html; charset=utf-8")
	require.NoError(t, err)

	assert.Equal(t, []Row{
		{},
		{DateText: "14:32", DateTitle: "2024-03-07 14:32:10"},
		{DateText: "03.01", DateTitle: "2024-03-01 09:00:00"},
		{DateText: "", DateTitle: "2023-12-25 10:00:00"},
	}, rows)

	assert.Equal(t, "", rows[0].RawDate())
	assert.Equal(t, "14:32", rows[1].RawDate())
	assert.Equal(t, "2023-12-25 10:00:00", rows[3].RawDate())
}

func TestExtract_NoListingStructure(t *testing.T) {
	e := NewExtractor(DefaultSelectors())

	rows, err := e.ExtractBytes([]byte(`<html><body><p>검색 결과가 없습니다.</p></body></html>`), "text/html")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestExtract_CustomSelectors(t *testing.T) {
	e := NewExtractor(Selectors{Row: "li.post", Date: "time"})
	html := `<html><body><ul><li class="post"><time>2024.03.02</time></li><li class="post"><time>어제</time></li></ul></body></html>`

	rows, err := e.ExtractBytes([]byte(html), "")
	require.NoError(t, err)
	assert.Equal(t, []Row{{DateText: "2024.03.02"}, {DateText: "어제"}}, rows)
}

func TestExtract_DecodesLegacyCharset(t *testing.T) {
	// "오늘" を EUC-KR でエンコードしたバイト列
	body := []byte("<html><body><table><tbody><tr class=\"ub-content\"><td class=\"gall_date\">\xbf\xc0\xb4\xc3</td></tr></tbody></table></body></html>")

	rows, err := NewExtractor(DefaultSelectors()).ExtractBytes(body, "text/html; charset=euc-kr")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "오늘", rows[0].DateText)
}
