package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncGatewayRequest("/v2/subscriptions", "ok")
		IncSyncOutcome("subscription_sync", "success")
		ObserveSyncRun("subscription_sync", 1.5)
	})
}
