package dto

// Response represents a standard API response
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorResponse is returned for every failed request. Error is a single human
// readable message; Code and Stage let clients react without parsing it.
type ErrorResponse struct {
	Success   bool               `json:"success"`
	Error     string             `json:"error"`
	Code      string             `json:"code"`
	Stage     string             `json:"stage,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail describes one invalid request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	}
}

// NewErrorResponseWithRequestID creates an error response carrying the request ID
func NewErrorResponseWithRequestID(code, message, requestID string) ErrorResponse {
	resp := NewErrorResponse(code, message)
	resp.RequestID = requestID
	return resp
}

// NewValidationErrorResponse creates a 400 response body with field details
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) ErrorResponse {
	resp := NewErrorResponseWithRequestID(ErrCodeValidation, message, requestID)
	resp.Details = details
	return resp
}
