package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
)

// APIErrorDetail is one entry of the error envelope.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse is the body of every non-2xx JSON response.
type APIErrorResponse struct {
	Errors    []APIErrorDetail `json:"errors"`
	RequestID string           `json:"request_id,omitempty"`
}

// WriteAPIError writes the error envelope, tagged with the request ID so the
// entry can be found in the server log.
func WriteAPIError(w http.ResponseWriter, r *http.Request, httpStatus int, code string, detail string) {
	resp := APIErrorResponse{
		Errors: []APIErrorDetail{{
			Code:   code,
			Status: strconv.Itoa(httpStatus),
			Detail: detail,
		}},
	}
	if r != nil {
		resp.RequestID = middleware.GetReqID(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
