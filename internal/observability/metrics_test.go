package observability_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/maelstrom-txn/internal/observability"
)

func TestCounters_LabelSetsUsable(t *testing.T) {
	observability.MessagesReceivedTotal.WithLabelValues("txn").Inc()
	observability.MessagesSentTotal.WithLabelValues("txn_ok").Inc()
	observability.RPCsTotal.WithLabelValues("cas").Inc()
	observability.TxnsTotal.WithLabelValues(observability.OutcomeCommitted).Inc()
	observability.TxnsTotal.WithLabelValues(observability.OutcomeAborted).Inc()
	observability.KVWritesTotal.WithLabelValues("chunk").Inc()
	observability.KVWritesTotal.WithLabelValues("partition").Inc()

	assert.GreaterOrEqual(t, testutil.ToFloat64(observability.TxnsTotal.WithLabelValues(observability.OutcomeCommitted)), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(observability.KVWritesTotal.WithLabelValues("chunk")), 1.0)
}
