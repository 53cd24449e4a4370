package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hispgo/program-messaging/internal/message"
	"github.com/hispgo/program-messaging/internal/repo"
	"github.com/hispgo/program-messaging/internal/scheduler"
	"github.com/hispgo/program-messaging/internal/service"
)

type Handler struct {
	svc      *service.Service
	messages repo.MessageRepository
	gateways repo.GatewayRepository
	sched    *scheduler.Scheduler
	pageSize int
}

func NewHandler(svc *service.Service, messages repo.MessageRepository, gateways repo.GatewayRepository, sched *scheduler.Scheduler) *Handler {
	return &Handler{svc: svc, messages: messages, gateways: gateways, sched: sched, pageSize: 50}
}

// WithPageSize overrides the page size applied when the caller omits one.
func (h *Handler) WithPageSize(n int) *Handler {
	if n > 0 {
		h.pageSize = n
	}
	return h
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// batchRequest is the submission payload: an ordered list of messages.
type batchRequest struct {
	ProgramMessages []message.ProgramMessage `json:"programMessages"`
}

func (h *Handler) SendMessages(w http.ResponseWriter, r *http.Request) {
	var batch batchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(batch.ProgramMessages) == 0 {
		http.Error(w, "programMessages must not be empty", http.StatusBadRequest)
		return
	}

	resp, err := h.svc.SendMessages(r.Context(), batch.ProgramMessages)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SaveOutbound(w http.ResponseWriter, r *http.Request) {
	var m message.ProgramMessage
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	saved, err := h.svc.SaveOutbound(r.Context(), m)
	if err != nil {
		if _, ok := service.AsValidationError(err); ok {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) QueryMessages(w http.ResponseWriter, r *http.Request) {
	params, err := queryParamsFromURL(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !params.HasScope() {
		// The query surface requires an association scope or an explicit
		// org-unit set; unscoped listing is not served.
		http.Error(w, "enrollment, event or ou must be specified", http.StatusConflict)
		return
	}

	// Resolve the effective page size here so a full default page still
	// reports hasMore truthfully.
	if params.PageSize <= 0 {
		params.PageSize = h.pageSize
	}

	items, err := h.messages.Query(r.Context(), params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":   emptyIfNil(items),
		"hasMore": len(items) == params.PageSize,
	})
}

// ScheduledSent lists sent messages for an enrollment or event, optionally
// bounded by afterDate.
func (h *Handler) ScheduledSent(w http.ResponseWriter, r *http.Request) {
	params, err := queryParamsFromURL(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if params.EnrollmentID == "" && params.EventID == "" {
		http.Error(w, "enrollment or event must be specified", http.StatusConflict)
		return
	}
	params.Status = message.Sent
	params.OrganisationUnitIDs = nil
	params.BeforeDate = time.Time{}

	items, err := h.messages.Query(r.Context(), params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": emptyIfNil(items)})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.messages.GetByUID(r.Context(), r.PathValue("uid"))
	if errors.Is(err, repo.ErrNotFound) {
		http.Error(w, "message not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type updateRequest struct {
	Text    string `json:"text"`
	Subject string `json:"subject"`
}

func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text must not be empty", http.StatusBadRequest)
		return
	}

	uid := r.PathValue("uid")
	err := h.messages.Update(r.Context(), uid, req.Text, req.Subject)
	if errors.Is(err, repo.ErrNotFound) {
		http.Error(w, "message not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m, err := h.messages.GetByUID(r.Context(), uid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.messages.GetByUID(r.Context(), r.PathValue("uid"))
	if errors.Is(err, repo.ErrNotFound) {
		http.Error(w, "message not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.messages.Delete(r.Context(), m.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListGateways(w http.ResponseWriter, r *http.Request) {
	items, err := h.gateways.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) SaveGateway(w http.ResponseWriter, r *http.Request) {
	var g repo.GatewayConfig
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if g.Name == "" || g.Channel == "" || g.Kind == "" {
		http.Error(w, "name, channel and kind are required", http.StatusBadRequest)
		return
	}

	saved, err := h.gateways.Save(r.Context(), g)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) SetDefaultGateway(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid gateway id", http.StatusBadRequest)
		return
	}

	err = h.gateways.SetDefault(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		http.Error(w, "gateway not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func queryParamsFromURL(r *http.Request) (message.QueryParams, error) {
	q := r.URL.Query()

	params := message.QueryParams{
		EnrollmentID: q.Get("enrollment"),
		EventID:      q.Get("event"),
		Status:       message.Status(q.Get("messageStatus")),
		Page:         parseInt(q.Get("page"), 0),
		PageSize:     parseInt(q.Get("pageSize"), 0),
	}

	if ou := q.Get("ou"); ou != "" {
		for _, id := range strings.Split(ou, ",") {
			if id = strings.TrimSpace(id); id != "" {
				params.OrganisationUnitIDs = append(params.OrganisationUnitIDs, id)
			}
		}
	}
	if ch := q.Get("channel"); ch != "" {
		for _, c := range strings.Split(ch, ",") {
			params.Channels = append(params.Channels, message.DeliveryChannel(strings.TrimSpace(c)))
		}
	}

	var err error
	if params.AfterDate, err = parseDate(q.Get("afterDate")); err != nil {
		return message.QueryParams{}, err
	}
	if params.BeforeDate, err = parseDate(q.Get("beforeDate")); err != nil {
		return message.QueryParams{}, err
	}

	return params, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("invalid date: " + raw)
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func emptyIfNil(items []message.ProgramMessage) []message.ProgramMessage {
	if items == nil {
		return []message.ProgramMessage{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
