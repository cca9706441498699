package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/seqflow/pkg/model"
)

type createInvocationRequest struct {
	Pipeline string        `json:"pipeline"`
	Sample   *model.Sample `json:"sample"`
}

// handleCreateInvocation validates and plans an invocation synchronously,
// then executes it in the background. Validation failures are returned
// immediately with a 400; an accepted invocation is returned as 201 with
// all tasks in their planned states.
func (s *Server) handleCreateInvocation(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req createInvocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if req.Pipeline == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "pipeline", Message: "pipeline name is required"}))
		return
	}
	if req.Sample == nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "sample", Message: "sample is required"}))
		return
	}

	pl, ok := s.pipelines[req.Pipeline]
	if !ok {
		respondError(w, reqID, http.StatusNotFound,
			model.NewNotFoundError("pipeline", req.Pipeline))
		return
	}

	inv, err := s.engine.Plan(r.Context(), pl, req.Sample)
	if err != nil {
		status := http.StatusInternalServerError
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			apiErr = &model.APIError{Code: model.ErrInternal, Message: err.Error()}
		} else if apiErr.Code == model.ErrValidation {
			status = http.StatusBadRequest
		}
		respondError(w, reqID, status, apiErr)
		return
	}

	// Respond before execution starts so the planned invocation is
	// encoded without racing the run goroutine.
	respondCreated(w, reqID, inv)

	go func() {
		ctx := context.Background()
		if err := s.engine.Run(ctx, pl, inv); err != nil {
			s.logger.Error("invocation failed",
				"invocation_id", inv.ID,
				"pipeline", inv.PipelineName,
				"error", err)
		}
	}()
}

func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	inv, err := s.store.GetInvocation(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if inv == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("invocation", id))
		return
	}
	respondOK(w, reqID, inv)
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := listOptionsFromQuery(r)
	invs, total, err := s.store.ListInvocations(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}

	respondList(w, reqID, invs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(invs) < total,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	inv, err := s.store.GetInvocation(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if inv == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("invocation", id))
		return
	}

	tasks, err := s.store.ListTasksByInvocation(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	respondOK(w, reqID, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	invID := chi.URLParam(r, "id")
	taskID := chi.URLParam(r, "tid")

	task, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if task == nil || task.InvocationID != invID {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("task", taskID))
		return
	}
	respondOK(w, reqID, task)
}

// listOptionsFromQuery parses limit, offset and state query parameters.
func listOptionsFromQuery(r *http.Request) model.ListOptions {
	var opts model.ListOptions
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	opts.State = r.URL.Query().Get("state")
	opts.Clamp()
	return opts
}
