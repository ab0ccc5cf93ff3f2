package sizing

import (
	"context"
	"math"
	"runtime"

	"go.uber.org/zap"
)

// Environment concurrency factors. A compat layer multitasks light sockets
// well; a container shares its host with neighbors.
const (
	compatLayerFactor = 2.0
	containerFactor   = 0.75
	bareMetalFactor   = 1.0
)

// fallbackMemoryGB is assumed when the host probe fails outright.
const fallbackMemoryGB = 4.0

// Sizer turns host capacity into a worker count.
type Sizer struct {
	probe  HostProbe
	logger *zap.Logger
}

// NewSizer builds a Sizer over the given probe.
func NewSizer(probe HostProbe, logger *zap.Logger) *Sizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sizer{probe: probe, logger: logger}
}

// OptimalWorkers computes the worker count for a profile:
//
//	base      = cpuCount x profile multiplier, scaled by the environment
//	memFactor = min(availableGB / divisor, cap), floored at zero
//	candidate = floor(base x memFactor)
//	final     = clamp(min(candidate, profile max, proxyCount, itemCount),
//	                  profile min, profile max)
//
// proxyCount or itemCount of zero or less means "no constraint from that
// resource". The profile floor and ceiling always win.
func (s *Sizer) OptimalWorkers(ctx context.Context, profile Profile, proxyCount, itemCount int) int {
	info, err := s.probe.Probe(ctx)
	if err != nil {
		s.logger.Warn("host probe failed, sizing from fallback assumptions", zap.Error(err))
		if info.CPUCount <= 0 {
			info.CPUCount = runtime.NumCPU()
		}
		if info.AvailableMemoryGB <= 0 {
			info.AvailableMemoryGB = fallbackMemoryGB
		}
		if info.Environment == "" {
			info.Environment = EnvBareMetal
		}
	}

	base := float64(info.CPUCount) * profile.Multiplier * environmentFactor(info.Environment)

	memFactor := 0.0
	if profile.MemDivisorGB > 0 {
		memFactor = info.AvailableMemoryGB / profile.MemDivisorGB
	}
	if memFactor > profile.MemFactorCap {
		memFactor = profile.MemFactorCap
	}
	if memFactor < 0 {
		memFactor = 0
	}

	candidate := int(math.Floor(base * memFactor))

	bounded := candidate
	if profile.MaxWorkers > 0 && bounded > profile.MaxWorkers {
		bounded = profile.MaxWorkers
	}
	if proxyCount > 0 && bounded > proxyCount {
		bounded = proxyCount
	}
	if itemCount > 0 && bounded > itemCount {
		bounded = itemCount
	}

	final := clamp(bounded, profile.MinWorkers, profile.MaxWorkers)

	s.logger.Info("sized worker pool",
		zap.String("profile", profile.Name),
		zap.Int("cpu_count", info.CPUCount),
		zap.String("environment", string(info.Environment)),
		zap.Float64("available_gb", round2(info.AvailableMemoryGB)),
		zap.Float64("mem_factor", round2(memFactor)),
		zap.Int("candidate", candidate),
		zap.Int("proxy_count", proxyCount),
		zap.Int("item_count", itemCount),
		zap.Int("workers", final))
	return final
}

func environmentFactor(env Environment) float64 {
	switch env {
	case EnvCompatLayer:
		return compatLayerFactor
	case EnvContainer:
		return containerFactor
	default:
		return bareMetalFactor
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
