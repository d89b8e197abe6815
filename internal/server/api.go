package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"ptzctl/internal/preset"
	"ptzctl/internal/protocol"
	"ptzctl/internal/ptz"
)

var errBadRequest = errors.New("bad request")

type panTiltRequest struct {
	Pan      *float64 `json:"pan"`
	Tilt     *float64 `json:"tilt"`
	Blocking *bool    `json:"blocking"`
}

type moveRelativeRequest struct {
	Axis     string  `json:"axis"`
	Delta    float64 `json:"delta"`
	Blocking *bool   `json:"blocking"`
}

type moveAbsoluteRequest struct {
	ptz.Target
	Blocking *bool `json:"blocking"`
}

type stopRequest struct {
	Axes []string `json:"axes"`
}

type poseResponse struct {
	Pose ptz.Pose `json:"pose"`
}

// errorCode maps err onto an HTTP status and a protocol error code.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, ptz.ErrInvalidAxis), errors.Is(err, preset.ErrInvalidName):
		return http.StatusBadRequest, protocol.ErrInvalidMessage
	case errors.Is(err, ptz.ErrClosed):
		return http.StatusServiceUnavailable, protocol.ErrDeviceUnavailable
	case errors.Is(err, ptz.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable, protocol.ErrDeviceUnavailable
	case errors.Is(err, ptz.ErrAxisBusy):
		return http.StatusConflict, protocol.ErrAxisBusy
	case errors.Is(err, ptz.ErrOutOfRange):
		return http.StatusUnprocessableEntity, protocol.ErrOutOfRange
	case errors.Is(err, ptz.ErrCalibrationRequired):
		return http.StatusPreconditionFailed, protocol.ErrCalibrationRequired
	case errors.Is(err, preset.ErrNotFound):
		return http.StatusNotFound, protocol.ErrPresetNotFound
	case errors.Is(err, ptz.ErrCancelled), errors.Is(err, context.Canceled):
		return http.StatusConflict, protocol.ErrCancelled
	}
	return http.StatusInternalServerError, protocol.ErrInternal
}

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorCode(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.checkDevice(err)
	s.respondJSON(w, r, status, protocol.ErrorPayload{Code: code, Message: err.Error()})
}

func (s *Server) respondResult(w http.ResponseWriter, r *http.Request, res ptz.Result) {
	status := http.StatusOK
	if res.Pending {
		status = http.StatusAccepted
	}
	s.respondJSON(w, r, status, res)
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// floatParam reads ?name= as a float. An absent parameter yields fallback.
func floatParam(r *http.Request, name string, fallback *float64) (*float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return &f, nil
}

// blockingParam reads ?blocking=, then body, falling back to def.
func blockingParam(r *http.Request, body *bool, def bool) (bool, error) {
	if v := r.URL.Query().Get("blocking"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%w: blocking: %v", errBadRequest, err)
		}
		return b, nil
	}
	if body != nil {
		return *body, nil
	}
	return def, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, r, http.StatusOK, protocol.StatusPayload{
		Status:          s.ctrl.Status(),
		ControlProtocol: s.cfg.ControlProtocol,
	})
}

func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, r, http.StatusOK, poseResponse{Pose: s.ctrl.EstimatedPose()})
}

// handleMove takes relative pan and tilt, from the query or a JSON body, stops whatever
// is moving and drives to the estimate plus the deltas as one absolute pan/tilt move.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req panTiltRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	dpan, err := floatParam(r, "pan", req.Pan)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	dtilt, err := floatParam(r, "tilt", req.Tilt)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if dpan == nil || dtilt == nil {
		s.respondError(w, r, fmt.Errorf("%w: pan and tilt are required", errBadRequest))
		return
	}
	blocking, err := blockingParam(r, req.Blocking, true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	cur, err := s.ctrl.CancelAll(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	pan, tilt := cur.Pan+*dpan, cur.Tilt+*dtilt
	res, err := s.ctrl.MoveAbsolute(r.Context(), ptz.Target{Pan: &pan, Tilt: &tilt}, blocking)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondResult(w, r, res)
}

func (s *Server) handleMoveRelative(w http.ResponseWriter, r *http.Request) {
	var req moveRelativeRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	axis, err := ptz.ParseAxis(req.Axis)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	blocking, err := blockingParam(r, req.Blocking, true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.ctrl.MoveRelative(r.Context(), axis, req.Delta, blocking)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondResult(w, r, res)
}

func (s *Server) handleMoveAbsolute(w http.ResponseWriter, r *http.Request) {
	var req moveAbsoluteRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	blocking, err := blockingParam(r, req.Blocking, true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.ctrl.MoveAbsolute(r.Context(), req.Target, blocking)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondResult(w, r, res)
}

func (s *Server) handleOrigin(w http.ResponseWriter, r *http.Request) {
	blocking, err := blockingParam(r, nil, true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.ctrl.CalibrateHardOrigin(r.Context(), blocking)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondResult(w, r, res)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	res, err := s.ctrl.GoHome(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondResult(w, r, res)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	pose, err := s.stop(r.Context(), req.Axes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, poseResponse{Pose: pose})
}

// stop cancels the named axes, or everything including running sequences.
func (s *Server) stop(ctx context.Context, names []string) (ptz.Pose, error) {
	if len(names) == 0 {
		return s.ctrl.CancelAll(ctx)
	}
	axes := make([]ptz.Axis, 0, len(names))
	for _, n := range names {
		a, err := ptz.ParseAxis(n)
		if err != nil {
			return ptz.Pose{}, err
		}
		axes = append(axes, a)
	}
	return s.ctrl.Stop(ctx, axes...)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	list, err := s.presets.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, list)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := s.presets.Load(r.Context(), name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, preset.Entry{Name: name, Pose: p})
}

// handleSavePreset stores the posted pose. Axes left out, or the whole body, default
// to the current estimate.
func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var t ptz.Target
	if err := decodeBody(r, &t); err != nil {
		s.respondError(w, r, err)
		return
	}
	name := chi.URLParam(r, "name")
	p := s.presetPose(t)
	if err := s.presets.Save(r.Context(), name, p); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.log.Info("preset saved", "name", name, "pose", p)
	s.respondJSON(w, r, http.StatusOK, preset.Entry{Name: name, Pose: p})
}

func (s *Server) presetPose(t ptz.Target) ptz.Pose {
	p := s.ctrl.EstimatedPose()
	if t.Pan != nil {
		p.Pan = *t.Pan
	}
	if t.Tilt != nil {
		p.Tilt = *t.Tilt
	}
	if t.Zoom != nil {
		p.Zoom = *t.Zoom
	}
	return p
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.presets.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (s *Server) handleRecallPreset(w http.ResponseWriter, r *http.Request) {
	blocking, err := blockingParam(r, nil, true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.recallPreset(r.Context(), chi.URLParam(r, "name"), blocking)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondResult(w, r, res)
}

func (s *Server) recallPreset(ctx context.Context, name string, blocking bool) (ptz.Result, error) {
	p, err := s.presets.Load(ctx, name)
	if err != nil {
		return ptz.Result{}, err
	}
	return s.ctrl.MoveAbsolute(ctx, ptz.TargetOf(p), blocking)
}
