package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/suteetoe/pallet-service/pkg/config"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	LoginCounter       prometheus.Counter
	RegisterCounter    prometheus.Counter
	AuthErrorsCounter  *prometheus.CounterVec
	TokensRevokedTotal prometheus.Counter
	RateLimitedCounter prometheus.Counter

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec

	// Domain operation metrics
	ProductOperationsCounter    *prometheus.CounterVec
	BrandOperationsCounter      *prometheus.CounterVec
	RecycleOperationsCounter    *prometheus.CounterVec
	AttachmentOperationsCounter *prometheus.CounterVec
	UserOperationsCounter       *prometheus.CounterVec

	// Share link metrics
	ShareOperationsCounter *prometheus.CounterVec
	ShareViewsCounter      *prometheus.CounterVec

	initOnce sync.Once
)

// InitMetrics initializes Prometheus metrics with configuration. Only the first call registers.
func InitMetrics(cfg *config.Config) {
	initOnce.Do(func() {
		register(cfg.Metrics.Prefix)
	})
}

func register(prefix string) {
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	LoginCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_login_attempts_total",
		Help: "Total number of login attempts",
	})

	RegisterCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_register_attempts_total",
		Help: "Total number of registration attempts",
	})

	AuthErrorsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors by reason",
		},
		[]string{"reason"},
	)

	TokensRevokedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_tokens_revoked_total",
		Help: "Total number of access tokens revoked by logout",
	})

	RateLimitedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	DbOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	ProductOperationsCounter = newOperationCounter(prefix, "product")
	BrandOperationsCounter = newOperationCounter(prefix, "brand")
	RecycleOperationsCounter = newOperationCounter(prefix, "recycle")
	AttachmentOperationsCounter = newOperationCounter(prefix, "attachment")
	UserOperationsCounter = newOperationCounter(prefix, "user")
	ShareOperationsCounter = newOperationCounter(prefix, "share")

	ShareViewsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_share_views_total",
			Help: "Total number of share link resolutions by pallet type",
		},
		[]string{"pallet_type"},
	)
}

func newOperationCounter(prefix, domain string) *prometheus.CounterVec {
	return promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_" + domain + "_operations_total",
			Help: "Total number of " + domain + " operations",
		},
		[]string{"operation"},
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if DbOperationDuration == nil {
			return
		}
		DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

// RecordHTTPRequest records one served request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if HttpRequestsTotal == nil {
		return
	}
	HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordLogin counts a login attempt
func RecordLogin() {
	inc(LoginCounter)
}

// RecordRegister counts a registration attempt
func RecordRegister() {
	inc(RegisterCounter)
}

// RecordAuthError increments the authentication error counter for reason
func RecordAuthError(reason string) {
	incVec(AuthErrorsCounter, reason)
}

// RecordTokenRevoked counts a logout revocation
func RecordTokenRevoked() {
	inc(TokensRevokedTotal)
}

// RecordRateLimited counts a rejected request
func RecordRateLimited() {
	inc(RateLimitedCounter)
}

// RecordProductOperation increments the counter for product operations
func RecordProductOperation(operation string) {
	incVec(ProductOperationsCounter, operation)
}

// RecordBrandOperation increments the counter for brand operations
func RecordBrandOperation(operation string) {
	incVec(BrandOperationsCounter, operation)
}

// RecordRecycleOperation increments the counter for recycle bin operations
func RecordRecycleOperation(operation string) {
	incVec(RecycleOperationsCounter, operation)
}

// RecordAttachmentOperation increments the counter for attachment operations
func RecordAttachmentOperation(operation string) {
	incVec(AttachmentOperationsCounter, operation)
}

// RecordUserOperation increments the counter for user and profile operations
func RecordUserOperation(operation string) {
	incVec(UserOperationsCounter, operation)
}

// RecordShareOperation increments the counter for share operations
func RecordShareOperation(operation string) {
	incVec(ShareOperationsCounter, operation)
}

// RecordShareView counts a resolved share link
func RecordShareView(palletType string) {
	incVec(ShareViewsCounter, palletType)
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func incVec(v *prometheus.CounterVec, label string) {
	if v != nil {
		v.WithLabelValues(label).Inc()
	}
}
