package sizing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProbe struct {
	info HostInfo
	err  error
}

func (f fakeProbe) Probe(context.Context) (HostInfo, error) {
	return f.info, f.err
}

func bulkProfile() Profile {
	return Profile{
		Name:         "bulk",
		Multiplier:   8,
		MemDivisorGB: 2,
		MemFactorCap: 4,
		MinWorkers:   5,
		MaxWorkers:   200,
		Timeout:      30 * time.Second,
	}
}

func probeProfile() Profile {
	return Profile{
		Name:         "probe",
		Multiplier:   3,
		MemDivisorGB: 4,
		MemFactorCap: 2,
		MinWorkers:   2,
		MaxWorkers:   40,
		MaxAttempts:  3,
	}
}

func TestOptimalWorkersFormula(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		host       HostInfo
		profile    Profile
		proxyCount int
		itemCount  int
		want       int
	}{
		{
			name:       "bare metal capped by profile ceiling",
			host:       HostInfo{CPUCount: 8, AvailableMemoryGB: 8, Environment: EnvBareMetal},
			profile:    bulkProfile(),
			proxyCount: 300,
			itemCount:  10000,
			// base 64, mem factor 4 -> candidate 256 -> ceiling 200.
			want: 200,
		},
		{
			name:       "compat layer doubles the base",
			host:       HostInfo{CPUCount: 4, AvailableMemoryGB: 4, Environment: EnvCompatLayer},
			profile:    probeProfile(),
			proxyCount: 30,
			itemCount:  1000,
			// base 4*3*2 = 24, mem factor 1 -> 24.
			want: 24,
		},
		{
			name:       "container scales down",
			host:       HostInfo{CPUCount: 4, AvailableMemoryGB: 4, Environment: EnvContainer},
			profile:    probeProfile(),
			proxyCount: 30,
			itemCount:  1000,
			// base 4*3*0.75 = 9, mem factor 1 -> 9.
			want: 9,
		},
		{
			name:       "scarce memory shrinks the candidate",
			host:       HostInfo{CPUCount: 16, AvailableMemoryGB: 0.5, Environment: EnvBareMetal},
			profile:    bulkProfile(),
			proxyCount: 100,
			itemCount:  1000,
			// base 128, mem factor 0.25 -> 32.
			want: 32,
		},
		{
			name:       "proxy count constrains",
			host:       HostInfo{CPUCount: 8, AvailableMemoryGB: 8, Environment: EnvBareMetal},
			profile:    bulkProfile(),
			proxyCount: 7,
			itemCount:  1000,
			want:       7,
		},
		{
			name:       "item count constrains",
			host:       HostInfo{CPUCount: 8, AvailableMemoryGB: 8, Environment: EnvBareMetal},
			profile:    bulkProfile(),
			proxyCount: 100,
			itemCount:  12,
			want:       12,
		},
		{
			name:       "profile floor dominates tiny workloads",
			host:       HostInfo{CPUCount: 8, AvailableMemoryGB: 8, Environment: EnvBareMetal},
			profile:    bulkProfile(),
			proxyCount: 100,
			itemCount:  2,
			want:       5,
		},
		{
			name:       "zero proxy count means unconstrained",
			host:       HostInfo{CPUCount: 2, AvailableMemoryGB: 8, Environment: EnvBareMetal},
			profile:    probeProfile(),
			proxyCount: 0,
			itemCount:  1000,
			// base 6, mem factor 2 (capped) -> 12.
			want: 12,
		},
		{
			name:       "zero available memory floors at minimum",
			host:       HostInfo{CPUCount: 8, AvailableMemoryGB: 0, Environment: EnvBareMetal},
			profile:    probeProfile(),
			proxyCount: 100,
			itemCount:  1000,
			want:       2,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewSizer(fakeProbe{info: tt.host}, zap.NewNop())
			got := s.OptimalWorkers(context.Background(), tt.profile, tt.proxyCount, tt.itemCount)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestOptimalWorkersStaysWithinBounds(t *testing.T) {
	t.Parallel()

	hosts := []HostInfo{
		{CPUCount: 1, AvailableMemoryGB: 0.25, Environment: EnvContainer},
		{CPUCount: 4, AvailableMemoryGB: 2, Environment: EnvBareMetal},
		{CPUCount: 32, AvailableMemoryGB: 128, Environment: EnvCompatLayer},
		{CPUCount: 96, AvailableMemoryGB: 512, Environment: EnvBareMetal},
	}
	profiles := []Profile{bulkProfile(), probeProfile()}
	counts := []int{1, 3, 10, 50, 500, 100000}

	for _, host := range hosts {
		for _, profile := range profiles {
			s := NewSizer(fakeProbe{info: host}, zap.NewNop())
			for _, proxies := range counts {
				for _, items := range counts {
					got := s.OptimalWorkers(context.Background(), profile, proxies, items)
					require.GreaterOrEqual(t, got, profile.MinWorkers)
					require.LessOrEqual(t, got, profile.MaxWorkers)
					upper := profile.MaxWorkers
					if proxies < upper {
						upper = proxies
					}
					if items < upper {
						upper = items
					}
					if upper >= profile.MinWorkers {
						require.LessOrEqual(t, got, upper,
							"host=%+v profile=%s proxies=%d items=%d", host, profile.Name, proxies, items)
					}
				}
			}
		}
	}
}

func TestOptimalWorkersSurvivesProbeFailure(t *testing.T) {
	t.Parallel()

	s := NewSizer(fakeProbe{err: context.DeadlineExceeded}, zap.NewNop())
	got := s.OptimalWorkers(context.Background(), probeProfile(), 10, 100)
	require.GreaterOrEqual(t, got, 2)
	require.LessOrEqual(t, got, 40)
}

func TestClassifyEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		system string
		role   string
		want   Environment
	}{
		{system: "wsl", role: "guest", want: EnvCompatLayer},
		{system: "docker", role: "guest", want: EnvContainer},
		{system: "lxc", role: "guest", want: EnvContainer},
		{system: "podman", role: "", want: EnvContainer},
		{system: "docker", role: "host", want: EnvBareMetal},
		{system: "kvm", role: "guest", want: EnvBareMetal},
		{system: "", role: "", want: EnvBareMetal},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, classifyEnvironment(tt.system, tt.role),
			"system=%q role=%q", tt.system, tt.role)
	}
}

func TestGopsutilProbeSmoke(t *testing.T) {
	t.Parallel()

	p := NewGopsutilProbe(zap.NewNop())
	info, err := p.Probe(context.Background())
	require.NoError(t, err)
	require.Positive(t, info.CPUCount)
	require.Positive(t, info.AvailableMemoryGB)
	require.Contains(t, []Environment{EnvBareMetal, EnvContainer, EnvCompatLayer}, info.Environment)
}
