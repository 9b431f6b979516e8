package model

import "net/http"

// DocumentResult is the client's report of one document write.
type DocumentResult struct {
	ResourceID    string  `json:"_rid,omitempty"`
	SelfLink      string  `json:"_self,omitempty"`
	StatusCode    int     `json:"statusCode"`
	RequestCharge float64 `json:"requestCharge,omitempty"`
}

// Succeeded reports whether the status code is in the 2xx range.
func (r *DocumentResult) Succeeded() bool {
	return r != nil && r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}
