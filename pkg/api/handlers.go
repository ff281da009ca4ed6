package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/openfroyo/catalogd/pkg/catalog"
	"github.com/openfroyo/catalogd/pkg/engine"
)

// ErrorResponse is the body of a failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WorkItemList is the body of GET /v1/workitems.
type WorkItemList struct {
	WorkItems []*engine.WorkItem `json:"work_items"`
	Count     int                `json:"count"`
}

func (s *Server) handleCreateHosts(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateHostsRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	result, err := s.catalog.CreateHosts(r.Context(), req)
	s.respond(w, result, err)
}

func (s *Server) handleDeployHosts(w http.ResponseWriter, r *http.Request) {
	var req catalog.DeployHostsRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	result, err := s.catalog.DeployHosts(r.Context(), req)
	s.respond(w, result, err)
}

func (s *Server) handleRestartHosts(w http.ResponseWriter, r *http.Request) {
	var req catalog.RestartHostsRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	result, err := s.catalog.RestartHosts(r.Context(), req)
	s.respond(w, result, err)
}

// handleBackfillHosts accepts a JSON request or a text/csv body of backfill rows.
// A CSV body is audited under the username in the X-Requestor header.
func (s *Server) handleBackfillHosts(w http.ResponseWriter, r *http.Request) {
	var req catalog.BackfillRequest
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "text/csv" {
		rows, err := catalog.ParseBackfill(r.Body)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		req = catalog.BackfillRequest{Requestor: engine.Requestor{Username: r.Header.Get("X-Requestor")}, Rows: rows}
	} else if !decodeBody(w, r, &req, false) {
		return
	}

	result, err := s.catalog.BackfillHosts(r.Context(), req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteHost(w http.ResponseWriter, r *http.Request) {
	var req catalog.DeleteHostRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	req.ServiceID = r.PathValue("serviceId")
	req.HostID = r.PathValue("hostId")

	result, err := s.catalog.DeleteHost(r.Context(), req)
	s.respond(w, result, err)
}

func (s *Server) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateEndpointRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	result, err := s.catalog.CreateEndpoint(r.Context(), req)
	s.respond(w, result, err)
}

func (s *Server) handleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	var req catalog.UpdateEndpointRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	req.EndpointID = r.PathValue("endpointId")

	result, err := s.catalog.UpdateEndpoint(r.Context(), req)
	s.respond(w, result, err)
}

func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	var req catalog.DeleteEndpointRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	req.ServiceID = r.PathValue("serviceId")
	req.EndpointID = r.PathValue("endpointId")

	result, err := s.catalog.DeleteEndpoint(r.Context(), req)
	s.respond(w, result, err)
}

func (s *Server) handleAddMemberships(w http.ResponseWriter, r *http.Request) {
	var req catalog.AddMembershipsRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	result, err := s.catalog.AddMemberships(r.Context(), req)
	s.respond(w, result, err)
}

// handleDeleteMembership takes the owning service from the body or the serviceId query parameter.
func (s *Server) handleDeleteMembership(w http.ResponseWriter, r *http.Request) {
	var req catalog.DeleteMembershipRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	req.HostID = r.PathValue("hostId")
	req.EndpointID = r.PathValue("endpointId")
	if req.ServiceID == "" {
		req.ServiceID = r.URL.Query().Get("serviceId")
	}

	result, err := s.catalog.DeleteMembership(r.Context(), req)
	s.respond(w, result, err)
}

func (s *Server) handleListWorkItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListWorkItems(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.telemetry.Metrics.SetPendingWorkItems(len(items))

	if serviceID := r.URL.Query().Get("serviceId"); serviceID != "" {
		filtered := items[:0]
		for _, item := range items {
			if item.Service.ID == serviceID {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	if items == nil {
		items = []*engine.WorkItem{}
	}

	writeJSON(w, http.StatusOK, WorkItemList{WorkItems: items, Count: len(items)})
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	audits, err := s.store.ListAudits(r.Context(), r.PathValue("serviceId"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if audits == nil {
		audits = []*engine.Audit{}
	}
	writeJSON(w, http.StatusOK, audits)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.HealthCheck(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respond writes a catalog result with 202, since the work completes asynchronously.
func (s *Server) respond(w http.ResponseWriter, result *catalog.Result, err error) {
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
	}

	code := engine.ErrorCode(err)
	if code == "" && status == http.StatusInternalServerError {
		code = engine.ErrCodeInternal
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

// StatusFor maps a classified error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case engine.ErrorCode(err) == engine.ErrCodeNotFound:
		return http.StatusNotFound
	case engine.IsValidation(err):
		return http.StatusBadRequest
	case engine.IsConflict(err):
		return http.StatusConflict
	case engine.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v. With optional set an empty body is accepted.
// It writes a 400 answer and returns false on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  engine.ErrCodeValidation,
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
