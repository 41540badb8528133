package observability

// NoopLogger is a Logger that discards everything
type NoopLogger struct{}

// NewNoopLogger creates a new no-op logger
func NewNoopLogger() Logger {
	return &NoopLogger{}
}

// Debug is a no-op implementation
func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}

// Info is a no-op implementation
func (l *NoopLogger) Info(msg string, fields map[string]interface{}) {}

// Warn is a no-op implementation
func (l *NoopLogger) Warn(msg string, fields map[string]interface{}) {}

// Error is a no-op implementation
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}

// WithPrefix returns the same no-op logger
func (l *NoopLogger) WithPrefix(prefix string) Logger { return l }

// NoopMetricsClient is a MetricsClient that records nothing
type NoopMetricsClient struct{}

// NewNoopMetricsClient creates a new no-op metrics client
func NewNoopMetricsClient() MetricsClient {
	return &NoopMetricsClient{}
}

// RecordCacheOperation is a no-op implementation
func (m *NoopMetricsClient) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
}
