package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/salesboard"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// CRM client metrics
	CRMRequestsTotal       metric.Int64Counter
	CRMRequestDuration     metric.Float64Histogram
	CRMRateLimitedTotal    metric.Int64Counter
	CRMRetryExhaustedTotal metric.Int64Counter
	CRMRecordsFetchedTotal metric.Int64Counter

	// Token lifecycle metrics
	TokenRefreshesTotal metric.Int64Counter

	// Leaderboard metrics
	LeaderboardBuildsTotal   metric.Int64Counter
	LeaderboardBuildDuration metric.Float64Histogram

	// Session metrics
	SessionChecksTotal         metric.Int64Counter
	SessionKeysIssuedTotal     metric.Int64Counter
	SessionKeyRedemptionsTotal metric.Int64Counter

	// Sync metrics
	SyncDealsUpsertedTotal metric.Int64Counter
	SyncDealsSkippedTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// CRM client metrics
	m.CRMRequestsTotal, _ = meter.Int64Counter(
		"salesboard.crm.requests.total",
		metric.WithDescription("Total number of CRM API requests"),
		metric.WithUnit("{request}"),
	)

	m.CRMRequestDuration, _ = meter.Float64Histogram(
		"salesboard.crm.request.duration",
		metric.WithDescription("Duration of CRM API requests"),
		metric.WithUnit("ms"),
	)

	m.CRMRateLimitedTotal, _ = meter.Int64Counter(
		"salesboard.crm.rate_limited.total",
		metric.WithDescription("Total number of CRM responses with status 429"),
		metric.WithUnit("{response}"),
	)

	m.CRMRetryExhaustedTotal, _ = meter.Int64Counter(
		"salesboard.crm.retry_exhausted.total",
		metric.WithDescription("Total number of CRM fetches that ran out of retry attempts"),
		metric.WithUnit("{fetch}"),
	)

	m.CRMRecordsFetchedTotal, _ = meter.Int64Counter(
		"salesboard.crm.records.fetched.total",
		metric.WithDescription("Total number of CRM records kept after window filtering"),
		metric.WithUnit("{record}"),
	)

	// Token lifecycle metrics
	m.TokenRefreshesTotal, _ = meter.Int64Counter(
		"salesboard.tokens.refreshes.total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{refresh}"),
	)

	// Leaderboard metrics
	m.LeaderboardBuildsTotal, _ = meter.Int64Counter(
		"salesboard.leaderboard.builds.total",
		metric.WithDescription("Total number of leaderboards built"),
		metric.WithUnit("{build}"),
	)

	m.LeaderboardBuildDuration, _ = meter.Float64Histogram(
		"salesboard.leaderboard.build.duration",
		metric.WithDescription("Duration of leaderboard builds"),
		metric.WithUnit("ms"),
	)

	// Session metrics
	m.SessionChecksTotal, _ = meter.Int64Counter(
		"salesboard.session.checks.total",
		metric.WithDescription("Total number of session checks"),
		metric.WithUnit("{check}"),
	)

	m.SessionKeysIssuedTotal, _ = meter.Int64Counter(
		"salesboard.session.keys.issued.total",
		metric.WithDescription("Total number of one-time session keys issued"),
		metric.WithUnit("{key}"),
	)

	m.SessionKeyRedemptionsTotal, _ = meter.Int64Counter(
		"salesboard.session.keys.redemptions.total",
		metric.WithDescription("Total number of one-time session key redemption attempts"),
		metric.WithUnit("{redemption}"),
	)

	// Sync metrics
	m.SyncDealsUpsertedTotal, _ = meter.Int64Counter(
		"salesboard.sync.deals.upserted.total",
		metric.WithDescription("Total number of deals upserted by the sync pipeline"),
		metric.WithUnit("{deal}"),
	)

	m.SyncDealsSkippedTotal, _ = meter.Int64Counter(
		"salesboard.sync.deals.skipped.total",
		metric.WithDescription("Total number of deals skipped because their owner is unknown"),
		metric.WithUnit("{deal}"),
	)

	return m
}
