package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want Config
	}{
		{
			name: "empty",
			cfg:  Config{},
			want: Config{ServiceName: "salesboard", SampleRatio: 1, MetricInterval: 30 * time.Second},
		},
		{
			name: "ratio out of range",
			cfg:  Config{ServiceName: "svc", SampleRatio: 2, MetricInterval: time.Second},
			want: Config{ServiceName: "svc", SampleRatio: 1, MetricInterval: time.Second},
		},
		{
			name: "kept",
			cfg:  Config{ServiceName: "svc", Version: "v1", SampleRatio: 0.25, MetricInterval: time.Minute},
			want: Config{ServiceName: "svc", Version: "v1", SampleRatio: 0.25, MetricInterval: time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.applyDefaults()
			require.Equal(t, tt.want, cfg)
		})
	}
}

func TestGetMetricsIsSingleton(t *testing.T) {
	require.Same(t, GetMetrics(), GetMetrics())
}
