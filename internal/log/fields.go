package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldStatementID = "statement_id"
	FieldBatchID     = "batch_id"
	FieldDirection   = "direction"
	FieldCategory    = "category"
	FieldActor       = "actor"
	FieldMatched     = "matched"
	FieldUpdated     = "updated"
	FieldCount       = "count"
	FieldMessageID   = "message_id"
	FieldDuration    = "duration_ms"
	FieldID          = "id"
	FieldYears       = "years"
	FieldReason      = "reason"
	FieldAttempt     = "attempt"
	FieldDelay       = "delay"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentCategorize = "categorize"
	ComponentReport     = "report"
	ComponentTaxonomy   = "taxonomy"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentCache      = "cache"
	ComponentBackend    = "backend"
	ComponentCLI        = "cli"
)

// Operations defines standard operation names
const (
	OpPreview      = "preview"
	OpCommit       = "commit"
	OpRecategorize = "recategorize"
	OpBulkAssign   = "bulk_assign"
	OpReport       = "report"
	OpNota         = "nota"
	OpImport       = "import"
	OpPublish      = "publish"
	OpConsume      = "consume"
	OpShutdown     = "shutdown"
	OpStartup      = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithBatch adds the result fields of a categorization batch.
func (f LogFields) WithBatch(batchID string, matched, updated int) LogFields {
	f[FieldBatchID] = batchID
	f[FieldMatched] = matched
	f[FieldUpdated] = updated
	return f
}

// WithPeriod adds year and, when non-zero, month.
func (f LogFields) WithPeriod(year, month int) LogFields {
	f[FieldYear] = year
	if month != 0 {
		f[FieldMonth] = month
	}
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
