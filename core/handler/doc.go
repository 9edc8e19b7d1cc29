// Package handler defines the response-function abstraction shared by
// streaming endpoints.
//
// A handler computes a Response for a request; the Response renders headers
// and body and returns rendering errors instead of writing them itself:
//
//	func hello(r *http.Request) handler.Response {
//		return func(w http.ResponseWriter, r *http.Request) error {
//			w.Header().Set("Content-Type", "text/plain")
//			_, err := w.Write([]byte("hello"))
//			return err
//		}
//	}
//
//	mux.Get("/hello", handler.Adapt(hello, nil))
package handler
