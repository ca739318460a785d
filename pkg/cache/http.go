package cache

import (
	"net/http"
)

// HeaderCache is the response header reporting how a read was served.
const HeaderCache = "X-Cache"

// WriteJSON writes a serialized JSON body with a 200 status and the X-Cache
// header set to status.
func WriteJSON(w http.ResponseWriter, status Status, body []byte) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderCache, string(status))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(body)
	return err
}
