package page

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-gallery-trend/pkg/httpclient"
	"github.com/shouni/go-gallery-trend/pkg/listing"
	"github.com/shouni/go-gallery-trend/pkg/retry"
)

const onePostPage = `<html><body><table><tbody>
<tr class="ub-content"><td class="gall_date" title="2024-03-01 10:00:00">03.01</td></tr>
</tbody></table></body></html>`

// newTestFetcher は、失敗回数 failures の後に body を返すサーバーに接続された Fetcher を返します。
func newTestFetcher(t *testing.T, failures int, failStatus int, body string) (*Fetcher, *atomic.Int32, *capturedRequest) {
	t.Helper()

	var calls atomic.Int32
	last := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		last.mu.Lock()
		last.query = r.URL.Query()
		last.header = r.Header.Clone()
		last.mu.Unlock()
		if int(n) <= failures {
			w.WriteHeader(failStatus)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	endpoint := Endpoint{BaseURL: srv.URL + "/board/lists", BoardID: "pizza", SearchType: "search_subject_memo"}
	opts := append(endpoint.HeaderOptions(), httpclient.WithRetryConfig(retry.Config{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}))
	client := httpclient.New(httpclient.Timeouts{Connect: time.Second, Read: time.Second}, opts...)

	f, err := NewFetcher(client, listing.NewExtractor(listing.DefaultSelectors()), endpoint)
	require.NoError(t, err)
	return f, &calls, last
}

type capturedRequest struct {
	mu     sync.Mutex
	query  url.Values
	header http.Header
}

func TestFetch_Success(t *testing.T) {
	f, calls, req := newTestFetcher(t, 0, 0, onePostPage)

	out := f.Fetch(context.Background(), "피자헛", 3)

	require.Equal(t, Success, out.Kind)
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, []listing.Row{{DateText: "03.01", DateTitle: "2024-03-01 10:00:00"}}, out.Rows)
	assert.Equal(t, int32(1), calls.Load())

	req.mu.Lock()
	defer req.mu.Unlock()
	q := req.query
	assert.Equal(t, "pizza", q.Get("id"))
	assert.Equal(t, "search_subject_memo", q.Get("s_type"))
	assert.Equal(t, "피자헛", q.Get("s_keyword"))
	assert.Equal(t, "3", q.Get("page"))
	assert.Equal(t, DefaultUserAgent, req.header.Get("User-Agent"))
	assert.Equal(t, DefaultAcceptLanguage, req.header.Get("Accept-Language"))
	assert.Contains(t, req.header.Get("Referer"), "/board/lists?id=pizza")
}

func TestFetch_SucceedsAfterTwo503(t *testing.T) {
	f, calls, _ := newTestFetcher(t, 2, http.StatusServiceUnavailable, onePostPage)

	out := f.Fetch(context.Background(), "X", 1)

	assert.Equal(t, Success, out.Kind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_RetryableAfterBudgetExhausted(t *testing.T) {
	f, calls, _ := newTestFetcher(t, 4, http.StatusServiceUnavailable, onePostPage)

	out := f.Fetch(context.Background(), "X", 1)

	assert.Equal(t, RetryableFailure, out.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, out.StatusCode)
	assert.Error(t, out.Reason)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_NonRetryableStatusIsRetryableFailure(t *testing.T) {
	f, calls, _ := newTestFetcher(t, 1, http.StatusNotFound, onePostPage)

	out := f.Fetch(context.Background(), "X", 1)

	assert.Equal(t, RetryableFailure, out.Kind)
	assert.Equal(t, http.StatusNotFound, out.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_NoRowsIsFatal(t *testing.T) {
	f, calls, _ := newTestFetcher(t, 0, 0, `<html><body><p>결과 없음</p></body></html>`)

	out := f.Fetch(context.Background(), "X", 1)

	assert.Equal(t, FatalFailure, out.Kind)
	assert.True(t, errors.Is(out.Reason, ErrNoRows))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewFetcher(t *testing.T) {
	_, err := NewFetcher(nil, listing.NewExtractor(listing.Selectors{}), Endpoint{})
	assert.Error(t, err)

	_, err = NewFetcher(httpclient.New(httpclient.Timeouts{}), nil, Endpoint{})
	assert.Error(t, err)

	f, err := NewFetcher(httpclient.New(httpclient.Timeouts{}), listing.NewExtractor(listing.Selectors{}), Endpoint{})
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint(), f.endpoint)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "retryable", RetryableFailure.String())
	assert.Equal(t, "fatal", FatalFailure.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
