package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldUserID      = "user_id"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldDate        = "date"
	FieldCategory    = "category"
	FieldAmountCents = "amount_cents"
	FieldPlanVersion = "plan_version"
	FieldDeficit     = "deficit_cents"
	FieldResidual    = "residual_cents"
	FieldRecovered   = "recovered_cents"
	FieldEvents      = "events"
	FieldStatus      = "status"
	FieldSeverity    = "severity"
	FieldZScore      = "z_score"
	FieldTxnID       = "transaction_id"
	FieldAttempt     = "attempt"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldSuccess     = "success"
	FieldDuration    = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentAllocator = "allocator"
	ComponentCalendar  = "calendar"
	ComponentEngine    = "engine"
	ComponentAnomaly   = "anomaly"
	ComponentPlan      = "plan"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
)

// Operations defines standard operation names
const (
	OpCreate       = "create"
	OpRead         = "read"
	OpUpdate       = "update"
	OpRecord       = "record"
	OpReallocate   = "reallocate"
	OpRedistribute = "redistribute"
	OpSnapshot     = "snapshot"
	OpPublish      = "publish"
	OpConsume      = "consume"
	OpValidate     = "validate"
	OpStartup      = "startup"
	OpShutdown     = "shutdown"
)
