// Package startup handles configuration loading and startup/shutdown
// logging for the remuxkit tools and the remuxd service.
//
// # Configuration
//
// All configuration is loaded from environment variables. [LoadToolConfig]
// reads the settings shared by every command-line tool:
//
//   - DEFAULT_SAMPLE_RATE: Output sample rate when the source rate is not supported (default: 48000)
//   - FFMPEG_LOG_LEVEL: Log level handed to FFmpeg for each job (default: error)
//   - METRICS_TEXTFILE: When set, tools write their metrics to this file on exit
//
// [LoadConfig] adds the remuxd service settings:
//
//   - WORK_DIR: Directory holding uploaded inputs and job outputs (default: /work)
//   - DATABASE_DIR: Directory of the job history database (default: /database)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: false)
//   - JOB_WORKERS: Number of concurrent jobs, 0 for one per CPU (default: 0)
//   - JOB_TIMEOUT: Maximum run time of a single job (default: 30m)
//   - MAX_UPLOAD_MB: Maximum size of an uploaded input (default: 512)
//   - LOG_LEVEL: Logging level - trace, debug, info, warn, error (default: info)
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// # Example Usage
//
//	config, err := startup.LoadConfig()
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//	startup.LogServerStarted(startup.ServerConfig{
//	    Port:            config.Port,
//	    MetricsPort:     config.MetricsPort,
//	    MetricsEnabled:  config.MetricsEnabled,
//	    StartupDuration: time.Since(startTime),
//	})
package startup
