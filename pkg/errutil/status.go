package errutil

// CoreStatus is a transport-agnostic error classification carried by BaseError.
type CoreStatus string

const (
	StatusBadRequest       CoreStatus = "BAD_REQUEST"
	StatusValidationFailed CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized     CoreStatus = "UNAUTHORIZED"
	StatusForbidden        CoreStatus = "FORBIDDEN"
	StatusNotFound         CoreStatus = "NOT_FOUND"
	StatusConflict         CoreStatus = "CONFLICT"
	StatusInternal         CoreStatus = "INTERNAL"
	StatusUnknown          CoreStatus = "UNKNOWN"
)
