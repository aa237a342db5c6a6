package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	dErrors "magbot/pkg/domain-errors"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementMinted("verification")
	m.IncrementMinted("verification")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TokensMinted.WithLabelValues("verification")))

	m.IncrementRejected("collateral", "mint", dErrors.New(dErrors.CodeForbidden, "nope"))
	m.IncrementRejected("collateral", "mint", errors.New("boom"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OperationsRejected.WithLabelValues("collateral", "mint", "forbidden")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OperationsRejected.WithLabelValues("collateral", "mint", "internal_error")))

	m.SetPaused("0xabc", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PauseState.WithLabelValues("0xabc")))
	m.SetPaused("0xabc", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.PauseState.WithLabelValues("0xabc")))

	m.ObserveOperation("verification", "mint", time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}
