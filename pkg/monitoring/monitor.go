package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	GradingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engz_grading_requests_total",
			Help: "Grading oracle calls by result (ok, unavailable, malformed)",
		},
		[]string{"result"},
	)

	DegradedGrades = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engz_degraded_grades_total",
			Help: "Submissions graded with the fallback score",
		},
	)

	MissionCompletions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engz_mission_completions_total",
			Help: "Missions transitioned to completed",
		},
	)

	RoutineCompletions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engz_routine_completions_total",
			Help: "Routines transitioned to completed",
		},
	)

	LevelTests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engz_level_tests_total",
			Help: "Submitted level tests by resulting level",
		},
		[]string{"level"},
	)
)

var registerOnce sync.Once

// Init 注册指标，重复调用无副作用
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(GradingRequests)
		prometheus.MustRegister(DegradedGrades)
		prometheus.MustRegister(MissionCompletions)
		prometheus.MustRegister(RoutineCompletions)
		prometheus.MustRegister(LevelTests)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
