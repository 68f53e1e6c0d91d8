package aggregate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-gallery-trend/pkg/crawler"
	"github.com/shouni/go-gallery-trend/pkg/page"
	"github.com/shouni/go-gallery-trend/pkg/progress"
	"github.com/shouni/go-gallery-trend/pkg/retry"
	"github.com/shouni/go-gallery-trend/pkg/types"
)

func mustDate(t *testing.T, s string) types.Date {
	t.Helper()
	d, err := types.ParseDate(s)
	require.NoError(t, err)
	return d
}

func testWindow(t *testing.T) types.Window {
	return types.Window{Start: mustDate(t, "2024-03-01"), End: mustDate(t, "2024-03-03")}
}

// stubCollector はキーワードごとに固定の件数を返します。
type stubCollector struct {
	mu       sync.Mutex
	counts   map[string]types.DailyCount
	errs     map[string]error
	called   []string
	inFlight atomic.Int32
	peak     atomic.Int32
	hold     time.Duration
}

func (s *stubCollector) Collect(ctx context.Context, keyword string, window types.Window, sink progress.Sink) (types.DailyCount, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	s.mu.Lock()
	s.called = append(s.called, keyword)
	s.mu.Unlock()

	sink.Report("ページ 1 を収集中...")
	if s.hold > 0 {
		time.Sleep(s.hold)
	}
	counts := types.DailyCount{}
	for k, v := range s.counts[keyword] {
		counts[k] = v
	}
	return counts, s.errs[keyword]
}

func TestRun_MergesAndSortsByDateThenKeyword(t *testing.T) {
	c := &stubCollector{counts: map[string]types.DailyCount{
		"도미노": {"2024-03-02": 1, "2024-03-01": 4},
		"피자헛": {"2024-03-02": 3},
		"피자스쿨": {},
	}}
	a, err := New(c)
	require.NoError(t, err)

	got, err := a.Run(context.Background(), []string{"피자헛", "도미노", "피자스쿨"}, testWindow(t))
	require.NoError(t, err)

	want := []types.ResultRow{
		{Keyword: "도미노", Date: mustDate(t, "2024-03-01"), Count: 4},
		{Keyword: "도미노", Date: mustDate(t, "2024-03-02"), Count: 1},
		{Keyword: "피자헛", Date: mustDate(t, "2024-03-02"), Count: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Run() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"피자헛", "도미노", "피자스쿨"}, c.called, "逐次実行では入力順に収集する")
}

func TestRun_InvalidWindow(t *testing.T) {
	c := &stubCollector{}
	a, err := New(c)
	require.NoError(t, err)

	inverted := types.Window{Start: mustDate(t, "2024-03-03"), End: mustDate(t, "2024-03-01")}
	got, err := a.Run(context.Background(), []string{"X"}, inverted)

	require.ErrorIs(t, err, types.ErrInvalidWindow)
	assert.Nil(t, got)
	assert.Empty(t, c.called)
}

func TestRun_EmptyKeywordsIsNoop(t *testing.T) {
	c := &stubCollector{}
	a, err := New(c)
	require.NoError(t, err)

	got, err := a.Run(context.Background(), []string{" ", ""}, testWindow(t))

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, c.called)
}

func TestRun_KeywordErrorDoesNotAbortOthers(t *testing.T) {
	boom := errors.New("boom")
	c := &stubCollector{
		counts: map[string]types.DailyCount{"B": {"2024-03-01": 2}},
		errs:   map[string]error{"A": boom},
	}
	a, err := New(c)
	require.NoError(t, err)

	got, err := a.Run(context.Background(), []string{"A", "B"}, testWindow(t))

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []types.ResultRow{{Keyword: "B", Date: mustDate(t, "2024-03-01"), Count: 2}}, got)
}

func TestRun_ConcurrencyIsBounded(t *testing.T) {
	keywords := []string{"a", "b", "c", "d", "e", "f"}
	c := &stubCollector{hold: 20 * time.Millisecond}
	a, err := New(c, WithConcurrency(2))
	require.NoError(t, err)

	_, err = a.Run(context.Background(), keywords, testWindow(t))
	require.NoError(t, err)

	assert.LessOrEqual(t, c.peak.Load(), int32(2))
	assert.ElementsMatch(t, keywords, c.called)
}

func TestRun_ProgressIsPrefixedWithKeyword(t *testing.T) {
	var mu sync.Mutex
	var messages []string
	sink := progress.SinkFunc(func(m string) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, m)
	})
	c := &stubCollector{counts: map[string]types.DailyCount{"X": {"2024-03-02": 2}}}
	a, err := New(c, WithSink(sink))
	require.NoError(t, err)

	_, err = a.Run(context.Background(), []string{"X"}, testWindow(t))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"[X] 収集を開始します",
		"[X] ページ 1 を収集中...",
		"[X] 収集が完了しました (2 件)",
	}, messages)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &stubCollector{}
	a, err := New(c)
	require.NoError(t, err)

	got, err := a.Run(ctx, []string{"X", "Y"}, testWindow(t))

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}

func TestUniqueKeywords(t *testing.T) {
	got := UniqueKeywords([]string{" 피자헛", "도미노", "", "피자헛", "도미노 "})
	assert.Equal(t, []string{"피자헛", "도미노"}, got)
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	a, err := New(&stubCollector{}, WithConcurrency(100))
	require.NoError(t, err)
	assert.Equal(t, MaxConcurrency, a.maxConcurrency)

	a, err = New(&stubCollector{}, WithConcurrency(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrency, a.maxConcurrency)
}

// listingPage は指定した日付の行を持つ一覧ページの HTML を返します。
func listingPage(dates ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="gall_list"><tbody>`)
	for i, d := range dates {
		fmt.Fprintf(&b, `<tr class="ub-content"><td class="gall_num">%d</td><td class="gall_date">%s</td></tr>`, i+1, d)
	}
	b.WriteString(`</tbody></table></body></html>`)
	return b.String()
}

// newListingServer はキーワードとページ番号ごとの HTML を返すサーバーを起動します。
func newListingServer(t *testing.T, pages map[string]map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		body, ok := pages[q.Get("s_keyword")][q.Get("page")]
		if !ok {
			body = `<html><body><p>검색 결과가 없습니다.</p></body></html>`
		}
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testOptions(baseURL string) Options {
	opts := DefaultOptions()
	opts.Endpoint = page.Endpoint{BaseURL: baseURL, BoardID: "pizza", SearchType: page.DefaultSearchType}
	opts.Policy = crawler.Policy{MaxPages: 5}
	opts.Retry = retry.Config{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
	opts.Clock = func() time.Time { return time.Date(2024, time.March, 3, 15, 0, 0, 0, crawler.DefaultLocation()) }
	return opts
}

func TestCollectStatistics_TwoKeywordsOneEmpty(t *testing.T) {
	srv, _ := newListingServer(t, map[string]map[string]string{
		"X": {"1": listingPage("14:02", "2024.03.02", "2024.03.02", "2024.02.28")},
		"Y": {
			"1": listingPage("2024.03.09"),
			"2": listingPage("2024.02.20"),
		},
	})

	got, err := CollectStatistics(context.Background(), []string{"X", "Y"}, testWindow(t), testOptions(srv.URL+"/board/lists"), nil)
	require.NoError(t, err)

	want := []types.ResultRow{
		{Keyword: "X", Date: mustDate(t, "2024-03-02"), Count: 2},
		{Keyword: "X", Date: mustDate(t, "2024-03-03"), Count: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CollectStatistics() mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectStatistics_Idempotent(t *testing.T) {
	srv, calls := newListingServer(t, map[string]map[string]string{
		"X": {
			"1": listingPage("오늘", "어제", "03.02"),
			"2": listingPage("03.01", "03.01", "02.29"),
		},
		"Y": {"1": listingPage("03.03", "2024-02-10")},
	})
	opts := testOptions(srv.URL + "/board/lists")
	opts.Concurrency = 2

	first, err := CollectStatistics(context.Background(), []string{"X", "Y"}, testWindow(t), opts, nil)
	require.NoError(t, err)
	firstCalls := calls.Load()

	second, err := CollectStatistics(context.Background(), []string{"X", "Y"}, testWindow(t), opts, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("2回の実行結果が一致しません (-first +second):\n%s", diff)
	}
	assert.Equal(t, firstCalls*2, calls.Load())
	assert.Len(t, first, 4)
}

func TestCollectStatistics_InvalidWindowMakesNoRequest(t *testing.T) {
	srv, calls := newListingServer(t, nil)
	inverted := types.Window{Start: mustDate(t, "2024-03-03"), End: mustDate(t, "2024-03-01")}

	_, err := CollectStatistics(context.Background(), []string{"X"}, inverted, testOptions(srv.URL), nil)

	require.ErrorIs(t, err, types.ErrInvalidWindow)
	assert.Equal(t, int32(0), calls.Load())
}
