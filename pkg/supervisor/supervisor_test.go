package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/transport"
)

func frameStream(t *testing.T, events ...models.ProgressEvent) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range events {
		require.NoError(t, transport.WriteFrame(&buf, ev))
	}
	return &buf
}

func sentinelLine(t *testing.T, ev models.ProgressEvent) string {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return transport.Sentinel + string(payload)
}

func TestDrainFramesCollectsQueueEvents(t *testing.T) {
	start := models.NewProgressEvent(models.EventPhaseStart, models.PhaseScout)
	done := models.NewProgressEvent(models.EventAuditComplete, "")

	var handled []string
	c := newCollector(func(ev models.ProgressEvent) { handled = append(handled, ev.Type) })
	drainFrames(frameStream(t, start, done), c)

	require.Len(t, c.queueEvents, 2)
	assert.Empty(t, c.stdoutEvents)
	assert.Equal(t, []string{models.EventPhaseStart, models.EventAuditComplete}, handled)
}

func TestDrainFramesStopsOnTruncatedStream(t *testing.T) {
	buf := frameStream(t, models.NewProgressEvent(models.EventPhaseStart, models.PhaseScout))
	buf.Write([]byte{0x00, 0x00}) // half a length word, then EOF

	c := newCollector(nil)
	drainFrames(buf, c)
	assert.Len(t, c.queueEvents, 1, "the complete frame survives, the stub is dropped")
}

func TestDrainLinesSplitsEventsFromPassthrough(t *testing.T) {
	ev := models.NewProgressEvent(models.EventStatsUpdate, models.PhaseGraph)
	input := strings.Join([]string{
		"plain log line",
		sentinelLine(t, ev),
		`{"url":"https://shop.example/","trust_score":47}`,
	}, "\n") + "\n"

	c := newCollector(nil)
	drainLines(strings.NewReader(input), c)

	require.Len(t, c.stdoutEvents, 1)
	assert.Equal(t, models.EventStatsUpdate, c.stdoutEvents[0].Type)
	assert.Contains(t, c.passthrough.String(), "plain log line")
	assert.Contains(t, c.passthrough.String(), `"trust_score":47`)
}

func TestCollectorReportPrefersResultEvent(t *testing.T) {
	report := &models.FinalReport{URL: "https://shop.example/", TrustScore: 81}
	data, err := json.Marshal(report)
	require.NoError(t, err)

	ev := models.NewProgressEvent(models.EventAuditResult, "")
	ev.Data = data

	c := newCollector(nil)
	c.add(ev, transport.ModeQueue)
	c.addPassthrough(`{"url":"https://other.example/","trust_score":10}`)

	got := c.report()
	require.NotNil(t, got)
	assert.Equal(t, "https://shop.example/", got.URL)
	assert.Equal(t, 81, got.TrustScore)
}

func TestCollectorReportFallsBackToStdoutDocument(t *testing.T) {
	c := newCollector(nil)
	c.addPassthrough("log noise before the document")
	c.addPassthrough(`{"url":"https://shop.example/","trust_score":47,"risk_level":"suspicious"}`)

	got := c.report()
	require.NotNil(t, got)
	assert.Equal(t, 47, got.TrustScore)
	assert.Equal(t, models.RiskSuspicious, got.RiskLevel)

	assert.Nil(t, newCollector(nil).report(), "no result anywhere")
}

func TestCollectorAddIsSafeForConcurrentStreams(t *testing.T) {
	c := newCollector(nil)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		mode := transport.ModeQueue
		if i == 1 {
			mode = transport.ModeStdout
		}
		go func(mode transport.Mode) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.add(models.NewProgressEvent(models.EventStatsUpdate, models.PhaseScout), mode)
			}
		}(mode)
	}
	wg.Wait()

	assert.Len(t, c.queueEvents, 50)
	assert.Len(t, c.stdoutEvents, 50)
}

func TestRunAuditFailsWhenBinaryMissing(t *testing.T) {
	sup, err := New(nil, "/nonexistent/trustlens-binary")
	require.NoError(t, err)

	_, err = sup.RunAudit(context.Background(), "https://shop.example/", Options{Tier: models.TierQuick})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start audit subprocess")
}
