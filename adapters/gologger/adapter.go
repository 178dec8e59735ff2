package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	ServiceLoggerName = "accounts"
	JobLoggerName     = "accounts.jobs"
)

// Resolve uses deterministic precedence provider > logger > nop. A blank
// name resolves the service logger.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = ServiceLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the accounts job logger and returns the go-job
// bridges used by index sync and outbox dispatch workers.
func ResolveForJob(provider glog.LoggerProvider, logger glog.Logger) (job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(JobLoggerName, provider, logger)
	return ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
