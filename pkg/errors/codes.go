package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrCodeTimeout: {
		Code:            ErrCodeTimeout,
		Retryable:       true,
		Description:     "Request exceeded time limit",
		SuggestedAction: "Raise the timeout: redora config set timeout 1m",
	},
	ErrCodeCancelled: {
		Code:            ErrCodeCancelled,
		Retryable:       false,
		Description:     "Request cancelled by user or system",
		SuggestedAction: "Check if cancellation was intentional",
	},
	ErrCodeUnavailable: {
		Code:            ErrCodeUnavailable,
		Retryable:       true,
		Description:     "Backend unreachable or temporarily unavailable",
		SuggestedAction: "Check connectivity: redora status",
	},
	ErrCodeUnauthenticated: {
		Code:            ErrCodeUnauthenticated,
		Retryable:       false,
		Description:     "Missing or invalid API token",
		SuggestedAction: "Store a token: redora auth login",
	},
	ErrCodeForbidden: {
		Code:            ErrCodeForbidden,
		Retryable:       false,
		Description:     "Token lacks access to this tenant or lead",
		SuggestedAction: "Check the tenant: redora config show",
	},
	ErrCodeValidation: {
		Code:            ErrCodeValidation,
		Retryable:       false,
		Description:     "Request rejected as invalid",
		SuggestedAction: "Check the filter values (score must be 0-100)",
	},
	ErrCodeNotFound: {
		Code:            ErrCodeNotFound,
		Retryable:       false,
		Description:     "Lead no longer exists on the server",
		SuggestedAction: "Reload the lead lists: redora leads list",
	},
	ErrCodeFetchFailed: {
		Code:            ErrCodeFetchFailed,
		Retryable:       true,
		Description:     "Lead lists could not be fetched; showing previous data",
		SuggestedAction: "Retry the load, or check logs with --debug",
	},
	ErrCodeClassifyRejected: {
		Code:            ErrCodeClassifyRejected,
		Retryable:       false,
		Description:     "Server rejected the status change; lead moved back to New",
		SuggestedAction: "Reload the lead and classify it again",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Re-run with --debug for more details"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
