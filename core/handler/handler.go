package handler

import "net/http"

// Response is a function that renders HTTP responses.
// It sets headers, status code, and writes the response body.
// Rendering errors are handled by the caller's error handler.
type Response func(w http.ResponseWriter, r *http.Request) error

// HandlerFunc produces a Response for a request.
type HandlerFunc func(r *http.Request) Response

// ErrorHandler handles errors returned while rendering a Response.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Adapt converts a HandlerFunc into a standard http.HandlerFunc.
// A nil Response is treated as 204 No Content.
func Adapt(h HandlerFunc, onError ErrorHandler) http.HandlerFunc {
	if onError == nil {
		onError = DefaultErrorHandler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h(r)
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err := resp(w, r); err != nil {
			onError(w, r, err)
		}
	}
}

// Error returns a Response writing a plain-text error with the given status.
// The error text is sent only for client errors; 5xx responses carry the
// status text and the caller logs the detail.
func Error(status int, err error) Response {
	return func(w http.ResponseWriter, r *http.Request) error {
		msg := http.StatusText(status)
		if err != nil && status < http.StatusInternalServerError {
			msg = err.Error()
		}
		http.Error(w, msg, status)
		return nil
	}
}

// DefaultErrorHandler writes a 500 response. Streams that already sent
// headers cannot change status; the write is then ignored by net/http.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
