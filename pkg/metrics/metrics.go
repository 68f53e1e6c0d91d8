// Package metrics は、収集の進み具合を Prometheus のメトリクスとして公開します。
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shouni/go-gallery-trend/pkg/page"
)

const namespace = "gallery_trend"

// Collector はページ単位の取得結果と集計件数を数えます。crawler.Recorder を満たします。
type Collector struct {
	registry *prometheus.Registry
	pages    *prometheus.CounterVec
	matched  *prometheus.CounterVec
}

// NewCollector は専用の Registry にメトリクスを登録した Collector を返します。
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Total listing pages fetched by keyword and outcome",
		}, []string{"keyword", "outcome"}),
		matched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matched_posts_total",
			Help:      "Total posts counted inside the requested window by keyword",
		}, []string{"keyword"}),
	}
	c.registry.MustRegister(c.pages, c.matched)
	return c
}

// ObservePage はページの取得結果を1件記録します。
func (c *Collector) ObservePage(keyword string, kind page.Kind) {
	c.pages.WithLabelValues(keyword, kind.String()).Inc()
}

// ObserveMatched は期間内として数えた投稿数を加算します。
func (c *Collector) ObserveMatched(keyword string, n int) {
	if n <= 0 {
		return
	}
	c.matched.WithLabelValues(keyword).Add(float64(n))
}

// Registry はメトリクスを保持する Registry を返します。
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler は /metrics 用の HTTP ハンドラーを返します。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve は addr で /metrics を公開し、ctx が終了するとサーバーを停止します。
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("メトリクスを公開します", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
