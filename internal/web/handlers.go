package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shoe-concept-studio/internal/generation"
	"shoe-concept-studio/internal/history"
	"shoe-concept-studio/internal/lock"
	"shoe-concept-studio/internal/prompt"
	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/studio"
)

type generateResponse struct {
	Images     []string  `json:"images"`
	PromptUsed string    `json:"promptUsed"`
	RequestID  string    `json:"requestId"`
	CreatedAt  time.Time `json:"createdAt"`
}

type presetResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Directive string `json:"directive"`
}

type locksResponse struct {
	Locks map[lock.Field]bool `json:"locks"`
	Phase studio.Phase        `json:"phase"`
	Busy  bool                `json:"busy"`
}

type historyEntry struct {
	Index      int       `json:"index"`
	At         time.Time `json:"at"`
	OK         bool      `json:"ok"`
	Kind       string    `json:"kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Prompt     string    `json:"prompt"`
	UserPrompt string    `json:"userPrompt"`
	Preset     string    `json:"preset"`
	Variations int       `json:"variations"`
	RequestID  string    `json:"requestId,omitempty"`
	Images     []string  `json:"images,omitempty"`
}

type journalRecord struct {
	At         time.Time `json:"at"`
	Outcome    string    `json:"outcome"`
	Status     int       `json:"status,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	UserPrompt string    `json:"userPrompt"`
	Preset     string    `json:"preset"`
	Variations int       `json:"variations"`
	ImagesIn   int       `json:"imagesIn"`
	ImagesOut  int       `json:"imagesOut"`
}

type draftResponse struct {
	Prompt     string   `json:"prompt"`
	Preset     string   `json:"preset"`
	Variations int      `json:"variations"`
	Slots      []string `json:"slots"`
}

func (s *Server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	presets := prompt.Presets()
	out := make([]presetResponse, 0, len(presets))
	for _, p := range presets {
		out = append(out, presetResponse{ID: p.ID, Name: p.Name, Directive: p.Directive})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.runGeneration(w, r, (*studio.Studio).Generate)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	s.runGeneration(w, r, (*studio.Studio).Regenerate)
}

type generateFunc func(*studio.Studio, context.Context, request.Draft) (*generation.Result, error)

func (s *Server) runGeneration(w http.ResponseWriter, r *http.Request, run generateFunc) {
	st := s.studio(w, r)
	if st.Busy() {
		writeError(w, studio.ErrBusy)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: "upload exceeds 25 MiB"})
			return
		}
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	live, err := s.readDraft(r, st)
	if err != nil {
		var upErr *uploadError
		if errors.As(err, &upErr) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	res, err := run(st, ctx, live)
	if err != nil {
		writeError(w, err)
		return
	}

	out := generateResponse{
		Images:     make([]string, 0, len(res.Images)),
		PromptUsed: res.PromptUsed,
		RequestID:  res.ID,
		CreatedAt:  res.CreatedAt,
	}
	for _, img := range res.Images {
		out.Images = append(out.Images, img.DataURL())
	}
	writeJSON(w, http.StatusOK, out)
}

// readDraft turns the multipart form into a draft. Uploaded files must be JPEG,
// PNG or WebP and are downscaled on the way in.
func (s *Server) readDraft(r *http.Request, st *studio.Studio) (request.Draft, error) {
	d := st.NewDraft()

	if r.MultipartForm != nil {
		for field, headers := range r.MultipartForm.File {
			slot, ok := request.ParseSlot(field)
			if !ok || len(headers) == 0 {
				continue
			}
			f, err := headers[0].Open()
			if err != nil {
				return request.Draft{}, errors.New("failed to read " + field)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return request.Draft{}, errors.New("failed to read " + field)
			}
			if len(data) == 0 {
				continue
			}
			img, err := st.Upload(headers[0].Filename, headers[0].Header.Get("Content-Type"), data)
			if err != nil {
				return request.Draft{}, &uploadError{slot: slot, err: err}
			}
			d.Images[slot] = img
		}
	}

	d.Prompt = prompt.Clean(r.FormValue("prompt"))
	d.Preset = strings.TrimSpace(r.FormValue("preset"))
	d.Background = strings.TrimSpace(r.FormValue("background"))

	raw := strings.TrimSpace(r.FormValue("variations"))
	if raw == "" {
		raw = strings.TrimSpace(r.FormValue("n"))
	}
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return request.Draft{}, errors.New("variations must be a number")
		}
		d.Variations = n
	}
	return d, nil
}

func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, locksView(s.viewStudio(r)))
}

// handleLockToggle flips a lock, or sets it when a locked=true|false value is given.
func (s *Server) handleLockToggle(w http.ResponseWriter, r *http.Request) {
	field, ok := lock.ParseField(chi.URLParam(r, "field"))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "unknown lock field", Kind: "not_found"})
		return
	}

	st := s.studio(w, r)
	if raw := strings.TrimSpace(r.FormValue("locked")); raw != "" {
		locked, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "locked must be true or false"})
			return
		}
		st.SetLock(field, locked)
	} else {
		st.ToggleLock(field)
	}
	writeJSON(w, http.StatusOK, locksView(st))
}

func locksView(st *studio.Studio) locksResponse {
	return locksResponse{Locks: st.Locks().Map(), Phase: st.Phase(), Busy: st.Busy()}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.viewStudio(r).History()
	out := make([]historyEntry, 0, len(entries))
	for i, e := range entries {
		out = append(out, historyView(i, e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func historyView(index int, e history.Entry) historyEntry {
	v := historyEntry{Index: index, At: e.At, OK: e.OK()}
	if req := e.Request; req != nil {
		v.Prompt = req.Prompt
		v.UserPrompt = req.UserPrompt
		v.Preset = req.Preset
		v.Variations = req.Variations
	}
	if res := e.Result; res != nil {
		v.RequestID = res.ID
		for _, img := range res.Images {
			v.Images = append(v.Images, img.DataURL())
		}
	}
	if f := e.Failure; f != nil {
		v.Kind = string(f.Kind)
		v.Error = f.UserMessage()
		v.RequestID = f.RequestID
	}
	return v
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	s.viewStudio(r).ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistoryReuse(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, studio.ErrNoSuchEntry)
		return
	}

	d, err := s.studio(w, r).Reuse(index)
	if err != nil {
		writeError(w, err)
		return
	}

	out := draftResponse{Prompt: d.Prompt, Preset: d.Preset, Variations: d.Variations}
	for _, slot := range request.Slots() {
		if _, ok := d.Image(slot); ok {
			out.Slots = append(out.Slots, string(slot))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLastPrompt(w http.ResponseWriter, r *http.Request) {
	text, ok := s.viewStudio(r).LastPrompt()
	writeJSON(w, http.StatusOK, map[string]any{"prompt": text, "ok": ok})
}

// handleJournal lists the caller's recorded attempts, newest first.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "journal is disabled", Kind: "not_found"})
		return
	}
	id, ok := cookieSession(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"records": []journalRecord{}})
		return
	}

	limit := 20
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = max(1, min(n, 100))
	}

	recs, err := s.journal.Recent(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("journal read failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "Could not read the journal."})
		return
	}
	out := make([]journalRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, journalRecord{
			At:         rec.CreatedAt,
			Outcome:    rec.Outcome,
			Status:     rec.Status,
			RequestID:  rec.RequestID,
			UserPrompt: rec.UserPrompt,
			Preset:     rec.Preset,
			Variations: rec.Variations,
			ImagesIn:   rec.ImagesIn,
			ImagesOut:  rec.ImagesOut,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}
