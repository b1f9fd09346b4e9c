package server

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"time"

	"github.com/batchline/batchline/internal/batch"
)

type APIResponse[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[T]{
		Message: "ok",
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[string]{
		Message: message,
		Data:    "",
	})
}

// writeCSV exports a result's error records. Error messages come from
// arbitrary processors, so fields go through a real CSV encoder.
func writeCSV(w http.ResponseWriter, batchID string, errs []batch.ItemError) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+batchID+"-errors.csv")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Item", "Error", "Timestamp"})
	for _, e := range errs {
		_ = cw.Write([]string{e.Item, e.Message, e.Timestamp.Format(time.RFC3339)})
	}
	cw.Flush()
}
