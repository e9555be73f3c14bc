package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordLatencyObservesStageDuration(t *testing.T) {
	before := testutil.CollectAndCount(RequestLatency)

	err := RecordLatency("test_stage", func() error { return nil })
	assert.NoError(t, err)

	after := testutil.CollectAndCount(RequestLatency)
	assert.Greater(t, after, before)
}

func TestRecordLatencyPropagatesError(t *testing.T) {
	sentinel := assert.AnError
	err := RecordLatency("test_stage_err", func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}
