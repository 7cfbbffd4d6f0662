package engine

// Error is an outcome code delivered through SessionCallback.OnError.
type Error int32

const (
	ErrorUnknown Error = iota
	ErrorHWUnavailable
	ErrorUnableToProcess
	ErrorTimeout
	ErrorNoSpace
	ErrorCanceled
	ErrorUnableToRemove
	ErrorVendor
	ErrorBadCalibration
	ErrorNoEnrollments
)

func (e Error) String() string {
	switch e {
	case ErrorHWUnavailable:
		return "hw_unavailable"
	case ErrorUnableToProcess:
		return "unable_to_process"
	case ErrorTimeout:
		return "timeout"
	case ErrorNoSpace:
		return "no_space"
	case ErrorCanceled:
		return "canceled"
	case ErrorUnableToRemove:
		return "unable_to_remove"
	case ErrorVendor:
		return "vendor"
	case ErrorBadCalibration:
		return "bad_calibration"
	case ErrorNoEnrollments:
		return "no_enrollments"
	default:
		return "unknown"
	}
}
