package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	cartMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Cart mutations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	cartsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carts_created_total",
			Help: "Carts created lazily on first add.",
		},
	)

	cartValidationIssuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_validation_issues_total",
			Help: "Validation findings by kind and severity.",
		},
		[]string{"kind", "severity"},
	)

	cartMergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_merges_total",
			Help: "Guest-to-user cart merges by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	cartMergeItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_merge_items_total",
			Help: "Guest cart lines processed during merges.",
		},
		[]string{"result"},
	)

	expiredCartsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_expired_swept_total",
			Help: "Expired carts deleted by the sweep job.",
		},
	)
)

// RecordCartMutation classifies err: nil is a success, business errors are
// rejections and anything else is a failure.
func RecordCartMutation(operation string, err error, isBusiness func(error) bool) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
		if isBusiness != nil && isBusiness(err) {
			outcome = OutcomeRejected
		}
	}

	cartMutationsTotal.WithLabelValues(operation, outcome).Inc()
}

func RecordCartCreated() {
	cartsCreatedTotal.Inc()
}

func RecordValidationIssue(kind, severity string) {
	cartValidationIssuesTotal.WithLabelValues(kind, severity).Inc()
}

func RecordMerge(strategy, outcome string, merged, failed int) {
	cartMergesTotal.WithLabelValues(strategy, outcome).Inc()
	cartMergeItemsTotal.WithLabelValues("merged").Add(float64(merged))
	cartMergeItemsTotal.WithLabelValues("failed").Add(float64(failed))
}

func RecordExpiredCartsSwept(n int64) {
	expiredCartsSweptTotal.Add(float64(n))
}
