package model

// DenialResponse is the standard envelope for pipeline denials (401/403/429)
// and other error replies. MissingPermissions is populated only for scope
// denials; RetryAfterSeconds only for rate-limit and cooldown denials.
type DenialResponse struct {
	Success            bool     `json:"success"`
	Error              string   `json:"error"`
	MissingPermissions []string `json:"missingPermissions,omitempty"`
	RetryAfterSeconds  *int64   `json:"retryAfterSeconds,omitempty"`
}

// SuccessResponse is the generic envelope for mutation endpoints that have
// no richer payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}
