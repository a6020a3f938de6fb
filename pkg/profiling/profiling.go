package profiling

import (
	"context"
	"log/slog"
	"os"
	"strings"

	fdotel "fleetdebugger/pkg/otel"

	"github.com/grafana/pyroscope-go"
)

// InitProfiling starts continuous profiling when
// PYROSCOPE_PROFILING_ENABLED is set. The returned func stops the profiler.
func InitProfiling() (func(), error) {
	if !isTrue(os.Getenv("PYROSCOPE_PROFILING_ENABLED")) {
		slog.Debug("Pyroscope profiling is disabled")
		return func() {}, nil
	}

	serverAddress := getEnv("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040")
	applicationName := getEnv("PYROSCOPE_APPLICATION_NAME", fdotel.ServiceName)

	config := pyroscope.Config{
		ApplicationName: applicationName,
		ServerAddress:   serverAddress,
		Logger:          pyroscope.StandardLogger,
		Tags: map[string]string{
			"service": fdotel.ServiceName,
			"version": fdotel.Version,
		},
		// normalization and pair scans are allocation heavy
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	}

	user := os.Getenv("PYROSCOPE_BASIC_AUTH_USER")
	password := os.Getenv("PYROSCOPE_BASIC_AUTH_PASSWORD")
	if user != "" && password != "" {
		config.BasicAuthUser = user
		config.BasicAuthPassword = password
	}

	profiler, err := pyroscope.Start(config)
	if err != nil {
		slog.Warn("Failed to start Pyroscope profiler", "error", err)
		return func() {}, nil
	}

	slog.Debug("Pyroscope profiling started", "server", serverAddress, "application", applicationName)

	return func() {
		if err := profiler.Stop(); err != nil {
			slog.Error("Error stopping Pyroscope profiler", "error", err)
		}
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// Stage runs fn with a pprof "stage" label so engine phases can be told
// apart in profiles. Labels apply whether or not the profiler is running.
func Stage(ctx context.Context, name string, fn func(context.Context)) {
	pyroscope.TagWrapper(ctx, pyroscope.Labels("stage", name), fn)
}
