package sizing

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

// Environment classifies where the process runs. A virtualization-compat
// layer (WSL) sustains more light concurrent connections than bare metal;
// a container shares its host and gets sized conservatively.
type Environment string

// Recognized environments.
const (
	EnvBareMetal   Environment = "bare-metal"
	EnvContainer   Environment = "container"
	EnvCompatLayer Environment = "compat-layer"
)

// HostInfo is everything the sizer needs to know about the host.
type HostInfo struct {
	CPUCount          int
	AvailableMemoryGB float64
	Environment       Environment
}

// HostProbe discovers HostInfo.
type HostProbe interface {
	Probe(ctx context.Context) (HostInfo, error)
}

// GopsutilProbe implements HostProbe with gopsutil.
type GopsutilProbe struct {
	logger *zap.Logger
}

// NewGopsutilProbe builds the standard host probe.
func NewGopsutilProbe(logger *zap.Logger) *GopsutilProbe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GopsutilProbe{logger: logger}
}

// Probe reads logical CPU count, available memory and the virtualization
// flavor. Individual readings degrade gracefully; only a total memory
// failure surfaces as an error.
func (p *GopsutilProbe) Probe(ctx context.Context) (HostInfo, error) {
	info := HostInfo{Environment: EnvBareMetal}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores <= 0 {
		p.logger.Debug("cpu count probe failed, using runtime.NumCPU", zap.Error(err))
		cores = runtime.NumCPU()
	}
	info.CPUCount = cores

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return info, err
	}
	info.AvailableMemoryGB = float64(vm.Available) / (1 << 30)

	system, role, err := host.VirtualizationWithContext(ctx)
	if err != nil {
		p.logger.Debug("virtualization probe failed, assuming bare metal", zap.Error(err))
		return info, nil
	}
	info.Environment = classifyEnvironment(system, role)
	return info, nil
}

func classifyEnvironment(system, role string) Environment {
	switch system {
	case "wsl":
		return EnvCompatLayer
	case "docker", "docker-ce", "lxc", "lxc-libvirt", "openvz", "rkt", "podman", "containerd":
		if role == "guest" || role == "" {
			return EnvContainer
		}
	}
	return EnvBareMetal
}
