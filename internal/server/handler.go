package server

import (
	"encoding/json"
	"net/http"

	"github.com/batchline/batchline/internal/apperror"
	"github.com/batchline/batchline/internal/batch"
	"github.com/batchline/batchline/internal/manager"
)

type handler struct {
	mgr      *manager.Manager
	handlers map[string]ItemHandler
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listProcessors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.mgr.Processors())
}

type submitRequest struct {
	Processor string   `json:"processor"`
	Handler   string   `json:"handler"`
	JobID     string   `json:"jobId,omitempty"`
	Items     []string `json:"items"`
}

func (r submitRequest) Validate() *apperror.AppError {
	if r.Processor == "" {
		return apperror.New(apperror.BadRequest, "processor is required")
	}
	if r.Handler == "" {
		return apperror.New(apperror.BadRequest, "handler is required")
	}
	return nil
}

type submitResponse struct {
	JobID  string       `json:"jobId"`
	Status batch.Status `json:"status"`
}

func (h *handler) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	fn, ok := h.handlers[req.Handler]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown item handler: "+req.Handler)
		return
	}

	jobID, err := manager.Submit[string](h.mgr, req.Processor,
		batch.FromSlice(req.Items), batch.ItemFunc[string](fn),
		manager.WithJobID(req.JobID),
	)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID, Status: batch.StatusRunning})
}

type statusResponse struct {
	JobID  string       `json:"jobId"`
	Status batch.Status `json:"status"`
}

func (h *handler) getJobStatus(w http.ResponseWriter, r *http.Request) {
	req := manager.GetJobRequest{ID: r.PathValue("id")}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	status, err := h.mgr.Status(r.Context(), req.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{JobID: req.ID, Status: status})
}

func (h *handler) getJobResult(w http.ResponseWriter, r *http.Request) {
	req := manager.GetJobRequest{ID: r.PathValue("id")}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	res, err := h.mgr.Result(r.Context(), req.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		writeCSV(w, res.BatchID, res.Errors)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	req := manager.GetJobRequest{ID: r.PathValue("id")}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	if !h.mgr.Cancel(req.ID) {
		writeError(w, http.StatusNotFound, "job is not running")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{JobID: req.ID, Status: batch.StatusCancelled})
}

func writeAppError(w http.ResponseWriter, err error) {
	if ae, ok := apperror.From(err); ok {
		writeError(w, ae.HTTPStatus(), ae.Message())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
