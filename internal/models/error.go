package models

// ErrorResponse is the JSON body of every failed API request.
type ErrorResponse struct {
	ErrCode string `json:"errcode"`
	Error   string `json:"error"`
}
