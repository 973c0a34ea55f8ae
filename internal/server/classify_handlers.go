package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/quadrant/internal/briefing"
	"github.com/normanking/quadrant/internal/quadrant"
)

const maxBodyBytes = 256 * 1024

// handleClassify routes one task.
// POST /v1/classify
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var body ClassifyRequest
	if apiErr := s.decode(w, r, &body); apiErr != nil {
		writeError(w, apiErr)
		return
	}

	id := body.CorrelationID
	if id == "" {
		id = uuid.NewString()
	}
	opts := []quadrant.RequestOption{quadrant.WithCorrelationID(id)}
	if body.Due != nil {
		opts = append(opts, quadrant.WithDue(*body.Due))
	}
	if len(body.Goals) > 0 {
		opts = append(opts, quadrant.WithGoals(body.Goals...))
	}

	res, apiErr := s.route(r.Context(), body.Text, opts...)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	writeJSON(w, http.StatusOK, ClassifyResponse{
		Result:      res,
		Action:      briefing.Action(res.Quadrant),
		NeedsReview: res.Confidence < s.classifier.Threshold(),
		LatencyMs:   res.Provenance.Latency.Milliseconds(),
	})
}

// handleBrief routes a batch of tasks and renders the briefing.
// POST /v1/brief
func (s *Server) handleBrief(w http.ResponseWriter, r *http.Request) {
	var body BriefRequest
	if apiErr := s.decode(w, r, &body); apiErr != nil {
		writeError(w, apiErr)
		return
	}
	if s.cfg.MaxBatch > 0 && len(body.Tasks) > s.cfg.MaxBatch {
		writeError(w, ErrBadRequest.withDetails("too many tasks"))
		return
	}

	var (
		entries []briefing.Entry
		failed  []string
	)
	for _, task := range body.Tasks {
		res, apiErr := s.route(r.Context(), task, quadrant.WithCorrelationID(uuid.NewString()))
		if apiErr != nil {
			if apiErr.Code != http.StatusBadRequest {
				writeError(w, apiErr)
				return
			}
			failed = append(failed, task)
			continue
		}
		entries = append(entries, briefing.Entry{Task: task, Result: res})
	}

	date := time.Now()
	if body.Date != nil {
		date = *body.Date
	}
	items := briefing.ActionItems(entries, s.classifier.Threshold())
	writeJSON(w, http.StatusOK, BriefResponse{
		Items:    items,
		Markdown: briefing.Markdown(date, items),
		Failed:   failed,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) *APIError {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return ErrBadRequest.withDetails(err.Error())
	}
	if err := s.validate.Struct(dst); err != nil {
		return ErrBadRequest.withDetails(err.Error())
	}
	return nil
}

func (s *Server) route(ctx context.Context, text string, opts ...quadrant.RequestOption) (quadrant.Result, *APIError) {
	req, err := quadrant.NewRequest(text, opts...)
	if err != nil {
		return quadrant.Result{}, ErrBadRequest.withDetails(err.Error())
	}

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	res, err := s.classifier.Route(ctx, req)
	if err == nil {
		return res, nil
	}

	switch {
	case quadrant.IsInputError(err):
		return quadrant.Result{}, ErrBadRequest.withDetails(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return quadrant.Result{}, ErrTimeout
	default:
		s.log.Warn("[Server] classify %s failed: %v", req.CorrelationID(), err)
		return quadrant.Result{}, ErrInternal.withDetails(err.Error())
	}
}
