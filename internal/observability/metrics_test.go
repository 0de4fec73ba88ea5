package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	Resolutions.WithLabelValues("miss").Inc()
	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "spacemeta_resolver_resolutions_total" {
			found = true
		}
	}
	require.True(t, found, "resolutions counter should be exported")
}

func TestCountersMove(t *testing.T) {
	before := testutil.ToFloat64(PlanCache.WithLabelValues("hit"))
	PlanCache.WithLabelValues("hit").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(PlanCache.WithLabelValues("hit")))
}
