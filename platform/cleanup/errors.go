package cleanup

import "fmt"

type Severity string

const (
	// SeveritySoft marks a single-resource failure that does not invalidate
	// the overall deletion; the operation is safely re-runnable.
	SeveritySoft Severity = "soft"
	// SeverityCritical marks a failure that leaves the system in an
	// inconsistent state an operator must reconcile, e.g. the team row
	// itself failing to delete.
	SeverityCritical Severity = "critical"
)

type CleanupError struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func softError(format string, args ...interface{}) CleanupError {
	return CleanupError{Severity: SeveritySoft, Message: fmt.Sprintf(format, args...)}
}

func criticalError(format string, args ...interface{}) CleanupError {
	return CleanupError{Severity: SeverityCritical, Message: fmt.Sprintf(format, args...)}
}

// CriticalMessages returns the messages of every critical error in errs.
func CriticalMessages(errs []CleanupError) []string {
	messages := make([]string, 0)
	for _, err := range errs {
		if err.Severity == SeverityCritical {
			messages = append(messages, err.Message)
		}
	}
	return messages
}
