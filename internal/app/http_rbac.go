package app

import (
	"net/http"
)

// routeProject handles /api/projects/{id}/... and reports whether it wrote a response.
func (s *HTTPServer) routeProject(w http.ResponseWriter, r *http.Request, session Session, projectID string, rest []string) bool {
	switch {
	case len(rest) == 1 && rest[0] == "permissions" && r.Method == http.MethodGet:
		payload, err := s.service.Permissions(r.Context(), session, projectID)
		if err != nil {
			writeMappedError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"projectId": projectID, "permissions": payload})
		return true

	case len(rest) == 1 && rest[0] == "calendar" && r.Method == http.MethodGet:
		payload, err := s.service.ProjectCalendar(r.Context(), session, projectID, r.URL.Query().Get("month"))
		if err != nil {
			writeMappedError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true

	case len(rest) == 1 && rest[0] == "members":
		s.handleProjectMembers(w, r, session, projectID)
		return true

	case len(rest) == 2 && rest[0] == "members":
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		if err := s.service.RemoveMember(r.Context(), session, projectID, rest[1]); err != nil {
			writeMappedError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "projectId": projectID, "userId": rest[1]})
		return true
	}
	return false
}

func (s *HTTPServer) handleProjectMembers(w http.ResponseWriter, r *http.Request, session Session, projectID string) {
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.ListMembers(r.Context(), session, projectID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)

	case http.MethodPost:
		var body AddMemberInput
		if !decodeAndValidate(w, r, &body) {
			return
		}
		payload, created, err := s.service.AddMember(r.Context(), session, projectID, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, payload)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}
