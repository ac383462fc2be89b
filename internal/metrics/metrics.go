// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordPurchase(price float64)
	RecordUpload(result string)
	RecordTokenVerification(ok bool)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordOrphansRemoved(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	purchases      prometheus.Counter
	revenue        prometheus.Counter
	uploads        *prometheus.CounterVec
	tokenVerify    *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	orphansRemoved prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noxshop_purchases_total",
			Help: "記録された購入の合計数",
		}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noxshop_purchase_revenue_total",
			Help: "購入時点の価格の合計",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "noxshop_image_uploads_total",
			Help: "結果別の画像アップロード数",
		}, []string{"result"}),
		tokenVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "noxshop_token_verifications_total",
			Help: "結果別のIDトークン検証数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "noxshop_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "noxshop_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		orphansRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noxshop_orphan_uploads_removed_total",
			Help: "削除された未参照アップロードファイルの合計数",
		}),
	}

	reg.MustRegister(
		c.purchases,
		c.revenue,
		c.uploads,
		c.tokenVerify,
		c.httpStatus,
		c.requestLatency,
		c.orphansRemoved,
	)

	return c
}

// RecordPurchase は購入1件とその価格を記録する。
func (c *Collector) RecordPurchase(price float64) {
	c.purchases.Inc()
	if price > 0 {
		c.revenue.Add(price)
	}
}

// RecordUpload は画像アップロードの結果を記録する。
func (c *Collector) RecordUpload(result string) {
	c.uploads.WithLabelValues(result).Inc()
}

// RecordTokenVerification はIDトークン検証の結果を記録する。
func (c *Collector) RecordTokenVerification(ok bool) {
	result := "invalid"
	if ok {
		result = "valid"
	}
	c.tokenVerify.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordOrphansRemoved は削除した未参照ファイル数を記録する。
func (c *Collector) RecordOrphansRemoved(count int) {
	c.orphansRemoved.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
