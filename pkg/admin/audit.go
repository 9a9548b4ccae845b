package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/opsboard/pkg/audit"
	"github.com/platinummonkey/opsboard/pkg/httputil"
)

// PageAudit guards the audit trail
const PageAudit = "admin.audit"

// SearchAudit lists recorded administration events. Query parameters: type
// (repeatable or comma separated), actor, role, since and until (RFC 3339),
// limit, offset and format (json, ndjson or csv).
func (h *Handlers) SearchAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	format, err := audit.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.service.SearchAudit(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if err := audit.Export(w, events, format); err != nil {
		h.logger.WithError(err).Warn("Failed to write audit export")
	}
}

func auditFilter(r *http.Request) (audit.Filter, error) {
	query := r.URL.Query()
	filter := audit.Filter{
		Actor:    strings.ToLower(strings.TrimSpace(query.Get("actor"))),
		RoleCode: query.Get("role"),
	}

	for _, value := range query["type"] {
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
			}
		}
	}

	for key, dest := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		value := query.Get(key)
		if value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return filter, errors.New("invalid " + key + ": expected RFC 3339 time")
		}
		*dest = &t
	}

	var err error
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", audit.DefaultLimit); err != nil {
		return filter, err
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	if filter.Offset < 0 {
		return filter, errors.New("offset must not be negative")
	}
	return filter, nil
}
