package harness

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpsim/internal/metrics"
	"github.com/roach88/erpsim/internal/simclient"
	"github.com/roach88/erpsim/internal/testutil"
)

func loadCase(t *testing.T, caseYAML string, extra map[string]string) *Scenario {
	t.Helper()
	path := writeCase(t, t.TempDir(), caseYAML, extra)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	return scenario
}

func TestRun_Pass(t *testing.T) {
	scenario := loadCase(t, basicCase, nil)
	sim := respondWith(testResponse)

	result, err := Run(context.Background(), sim, scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.True(t, result.Called)
	assert.Equal(t, 200, result.StatusCode)
	assert.Len(t, result.RequestHash, 64)

	require.Len(t, sim.calls, 1)
	req := sim.calls[0]
	assert.Equal(t, "CustomerChanged", req.EventName)
	assert.Equal(t, FormatJSON, req.Format)
	// Payload is compacted JSON
	assert.Equal(t, `{"customerId":"C-1001","firstName":"Jane"}`, string(req.Payload))
	assert.JSONEq(t, testMapping, string(req.Mapping))
}

func TestRun_AssertionFailuresCollected(t *testing.T) {
	content := `
name: failing
description: "two failing assertions"
event: event.json
mapping: mapping.json
assertions:
  - type: entity_count
    count: 2
  - type: entity_contains
    schema: contact
    attributes: { first_name: "Jane" }
  - type: path_equals
    path: entity_updates.0.attributes.first_name
    value: John
`
	scenario := loadCase(t, content, nil)

	result, err := Run(context.Background(), respondWith(testResponse), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "assertions[0] entity_count")
	assert.Contains(t, result.Errors[1], "assertions[2] path_equals")
}

func TestRun_InvalidMappingNotSent(t *testing.T) {
	badMapping := `{"mapping": {"events": {"CustomerChanged": {"entities": [
		{"entity_schema": "contact", "unique_ids": ["customer_number"],
		 "fields": [{"attribute": "first_name", "field": "firstName"}]}]}}}}`
	scenario := loadCase(t, basicCase, map[string]string{"mapping.json": badMapping})
	sim := respondWith(testResponse)

	result, err := Run(context.Background(), sim, scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.False(t, result.Called)
	assert.Empty(t, sim.calls)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "mapping: [E204]")
}

func TestRun_UnknownEventName(t *testing.T) {
	content := `
name: wrong_event
description: "event_name not in mapping"
event: event.json
mapping: mapping.json
event_name: OrderCreated
assertions:
  - type: no_warnings
`
	scenario := loadCase(t, content, nil)
	sim := respondWith(testResponse)

	result, err := Run(context.Background(), sim, scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Empty(t, sim.calls)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `event_name "OrderCreated" not defined in mapping (available: CustomerChanged)`)
}

func TestRun_MalformedEvent(t *testing.T) {
	scenario := loadCase(t, basicCase, map[string]string{"event.json": `{"customerId": `})

	_, err := Run(context.Background(), respondWith(testResponse), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not valid JSON")
}

func TestRun_XMLPayloadPassedThrough(t *testing.T) {
	content := `
name: xml_event
description: "xml payloads are forwarded untouched"
event: event.xml
mapping: mapping.json
format: xml
assertions:
  - type: entity_count
    count: 1
`
	xml := "<customer><id>C-1001</id></customer>\n"
	scenario := loadCase(t, content, map[string]string{"event.xml": xml})
	sim := respondWith(testResponse)

	result, err := Run(context.Background(), sim, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, sim.calls, 1)
	assert.Equal(t, FormatXML, sim.calls[0].Format)
	assert.Equal(t, "<customer><id>C-1001</id></customer>", string(sim.calls[0].Payload))
}

func TestRun_ExpectStatus(t *testing.T) {
	content := `
name: rejected
description: "the service rejects this mapping"
event: event.json
mapping: mapping.json
expect_status: 400
assertions:
  - type: path_exists
    path: message
`
	t.Run("matching_status", func(t *testing.T) {
		scenario := loadCase(t, content, nil)
		sim := &fakeSimulator{err: &simclient.APIError{
			StatusCode: 400,
			Message:    "invalid mapping",
			Body:       []byte(`{"message": "invalid mapping"}`),
		}}

		result, err := Run(context.Background(), sim, scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "errors: %v", result.Errors)
		assert.Equal(t, 400, result.StatusCode)
		assert.Equal(t, map[string]any{"message": "invalid mapping"}, result.Output)
	})

	t.Run("other_status", func(t *testing.T) {
		scenario := loadCase(t, content, nil)
		sim := &fakeSimulator{err: &simclient.APIError{StatusCode: 422, Body: []byte("nope")}}

		result, err := Run(context.Background(), sim, scenario)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Equal(t, []string{"expected status 400, got 422"}, result.Errors)
		assert.Equal(t, "nope", result.Output)
	})

	t.Run("accepted_instead", func(t *testing.T) {
		scenario := loadCase(t, content, nil)

		result, err := Run(context.Background(), respondWith(testResponse), scenario)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Equal(t, []string{"expected status 400, got 200"}, result.Errors)
	})
}

func TestRun_UnexpectedRejection(t *testing.T) {
	scenario := loadCase(t, basicCase, nil)
	sim := &fakeSimulator{err: &simclient.APIError{StatusCode: 400, Message: "bad mapping"}}

	result, err := Run(context.Background(), sim, scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "simulation rejected: API error (400): bad mapping")
}

func TestRun_TransportErrorIsExecutionError(t *testing.T) {
	scenario := loadCase(t, basicCase, nil)
	sim := &fakeSimulator{err: errors.New("connection refused")}

	_, err := Run(context.Background(), sim, scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulate customer_contact")
}

func TestRun_DurationFromClock(t *testing.T) {
	scenario := loadCase(t, basicCase, nil)
	clock := testutil.NewStepClock(250 * time.Millisecond)

	result, err := Run(context.Background(), respondWith(testResponse), scenario, WithClock(clock.Now))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, result.Duration)
}

func TestRun_Metrics(t *testing.T) {
	collector := metrics.NewCollector()
	ctx := context.Background()

	pass := loadCase(t, basicCase, nil)
	_, err := Run(ctx, respondWith(testResponse), pass, WithMetrics(collector))
	require.NoError(t, err)

	rejected := &fakeSimulator{err: &simclient.APIError{StatusCode: 500}}
	_, err = Run(ctx, rejected, loadCase(t, basicCase, nil), WithMetrics(collector))
	require.NoError(t, err)

	broken := &fakeSimulator{err: errors.New("boom")}
	_, err = Run(ctx, broken, loadCase(t, basicCase, nil), WithMetrics(collector))
	require.Error(t, err)

	s, err := collector.Summary()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		metrics.OutcomeOK:       1,
		metrics.OutcomeAPIError: 1,
		metrics.OutcomeError:    1,
	}, s.Simulations)
	assert.Equal(t, map[string]int{metrics.ResultPass: 1, metrics.ResultFail: 2}, s.Cases)
}

func TestRun_RequestHashStable(t *testing.T) {
	dir := t.TempDir()
	a := writeCase(t, filepath.Join(dir, "a"), basicCase, nil)
	// Same fixtures, different whitespace
	b := writeCase(t, filepath.Join(dir, "b"), basicCase, map[string]string{
		"event.json": `{"customerId":"C-1001","firstName":"Jane"}`,
	})
	c := writeCase(t, filepath.Join(dir, "c"), basicCase, map[string]string{
		"event.json": `{"customerId":"C-1002","firstName":"Jane"}`,
	})

	hash := func(path string) string {
		s, err := LoadScenario(path)
		require.NoError(t, err)
		r, err := Run(context.Background(), respondWith(testResponse), s)
		require.NoError(t, err)
		return r.RequestHash
	}

	assert.Equal(t, hash(a), hash(b))
	assert.NotEqual(t, hash(a), hash(c))
}

func TestRun_AgainstHTTPServer(t *testing.T) {
	srv := testutil.NewSimServer(t, testutil.SimReply{Status: http.StatusOK, Body: testResponse})
	client, err := simclient.NewClient(simclient.Config{BaseURL: srv.URL, Token: "tok"})
	require.NoError(t, err)

	scenario := loadCase(t, basicCase, nil)
	result, err := Run(context.Background(), client, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, simclient.DefaultSimulatePath, reqs[0].Path)
	assert.Equal(t, "Bearer tok", reqs[0].Authorization)
	assert.Equal(t, `{"customerId":"C-1001","firstName":"Jane"}`, reqs[0].Payload)
	assert.Equal(t, "CustomerChanged", reqs[0].EventName)
}
