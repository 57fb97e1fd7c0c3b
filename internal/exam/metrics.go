package exam

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports generation and grading counters. A nil *Metrics records nothing.
type Metrics struct {
	questionsGenerated prometheus.Counter
	answersGraded      prometheus.Counter
	answerScore        prometheus.Histogram
	llmErrors          *prometheus.CounterVec
	generationDuration prometheus.Histogram
}

// NewMetrics registers the service metrics on reg, reusing collectors that
// are already registered. A nil reg means the default registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{}
	var err error
	if m.questionsGenerated, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "examgen_questions_generated_total",
		Help: "Questions generated and stored.",
	})); err != nil {
		return nil, err
	}
	if m.answersGraded, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "examgen_answers_graded_total",
		Help: "Answers graded.",
	})); err != nil {
		return nil, err
	}
	if m.answerScore, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "examgen_answer_score",
		Help:    "Distribution of answer totals on the 0-10 scale.",
		Buckets: prometheus.LinearBuckets(0, 1, 11),
	})); err != nil {
		return nil, err
	}
	if m.llmErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "examgen_llm_errors_total",
		Help: "Failed model calls by operation.",
	}, []string{"op"})); err != nil {
		return nil, err
	}
	if m.generationDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "examgen_generation_duration_seconds",
		Help:    "Time to generate one batch including references.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

func (m *Metrics) generated(n int, d time.Duration) {
	if m == nil {
		return
	}
	m.questionsGenerated.Add(float64(n))
	m.generationDuration.Observe(d.Seconds())
}

func (m *Metrics) graded(total float64) {
	if m == nil {
		return
	}
	m.answersGraded.Inc()
	m.answerScore.Observe(total)
}

func (m *Metrics) llmError(op string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(op).Inc()
}
