package server

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/me/seqflow/pkg/model"
	"github.com/me/seqflow/pkg/pipeline"
)

type pipelineSummary struct {
	Name     string   `json:"name"`
	Doc      string   `json:"doc,omitempty"`
	Steps    int      `json:"steps"`
	Branches []string `json:"branches,omitempty"`
}

func summarize(pl *pipeline.Pipeline) pipelineSummary {
	tags := make([]string, 0, len(pl.Branches))
	for tag := range pl.Branches {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return pipelineSummary{
		Name:     pl.Name,
		Doc:      pl.Doc,
		Steps:    len(pl.Steps),
		Branches: tags,
	}
}

func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	names := make([]string, 0, len(s.pipelines))
	for name := range s.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]pipelineSummary, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, summarize(s.pipelines[name]))
	}
	respondOK(w, reqID, summaries)
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")

	pl, ok := s.pipelines[name]
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("pipeline", name))
		return
	}
	respondOK(w, reqID, pl)
}
