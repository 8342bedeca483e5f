package transport

import "encoding/json"

// Envelope is the standard API response wrapper used for both success and error payloads.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
}

// Page describes a paginated listing.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// RouteResponse is returned for an inbound customer message.
type RouteResponse struct {
	ConversationID string `json:"conversationId"`
	RoutedTo       string `json:"routedTo"`
}

// BusinessRef is the public view of a business.
type BusinessRef struct {
	ID string `json:"id"`
}

// CloseResponse confirms a close and returns the resulting conversation.
type CloseResponse struct {
	Message      string      `json:"message"`
	Conversation interface{} `json:"conversation"`
}

// NewSuccess returns a success envelope.
func NewSuccess(data interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

// NewError returns an error envelope with optional metadata.
func NewError(code string, err interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  err,
		Meta:   meta,
	}
}

// String returns the JSON representation (best-effort) for logging purposes.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}
