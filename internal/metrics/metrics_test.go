package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/drivetun/internal/util"
)

func TestRegistryReadsStats(t *testing.T) {
	reg := NewRegistry()

	before, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 9, before)

	batches := util.Stats.Batches.Load()
	util.Stats.AddBatch(128)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "drivetun_batches_uploaded_total")
	assert.Contains(t, string(body), "drivetun_active_sessions")

	expected := fmt.Sprintf(`# HELP drivetun_batches_uploaded_total Batches written to a storage slot
# TYPE drivetun_batches_uploaded_total counter
drivetun_batches_uploaded_total %d
`, batches+1)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "drivetun_batches_uploaded_total"))
}
