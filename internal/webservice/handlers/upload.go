package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/ubuntu/ubuntu-moderation/internal/analysis"
	"github.com/ubuntu/ubuntu-moderation/internal/composer"
	"github.com/ubuntu/ubuntu-moderation/internal/handoff"
	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
	"github.com/ubuntu/ubuntu-moderation/internal/webservice/metrics"
)

// multipartMemory is how much of a multipart form is kept in memory before spilling to disk.
const multipartMemory = 1 << 20

// SourceDrop is the image_source form value of an image dropped on the page.
const SourceDrop = "drop"

var errImageTooLarge = errors.New("image exceeds the upload limit")

type uploadData struct {
	Error       string
	Text        string
	TextLength  int
	MaxUploadMB int64
	CanSubmit   bool
	Retry       bool
}

// Upload serves the submission composer.
type Upload struct {
	pages          *Pages
	client         analysis.Client
	store          *handoff.Store
	maxUploadBytes int64
}

// NewUpload creates a new Upload handler sending submissions to client and handing results off through store.
func NewUpload(pages *Pages, client analysis.Client, store *handoff.Store, maxUploadBytes int64) *Upload {
	return &Upload{
		pages:          pages,
		client:         client,
		store:          store,
		maxUploadBytes: maxUploadBytes,
	}
}

// Form renders an empty composer.
func (h *Upload) Form(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	h.pages.Render(w, http.StatusOK, PageUpload, h.data(composer.New(h.client)))
}

// Submit reads the composed submission, sends it for analysis and redirects to its result.
func (h *Upload) Submit(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	metrics.ApplyLabels(r)
	slog.Info("Request recv'd", "req_id", reqID, "path", r.URL.Path)

	// The limit applies to the image. The rest of the form gets multipartMemory of headroom.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		d := h.data(composer.New(h.client))
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.tooLarge(w, reqID, d)
			return
		}
		d.Error = "The submission could not be read."
		slog.Error("Failed to parse submission form", "req_id", reqID, "err", err)
		h.pages.Render(w, http.StatusBadRequest, PageUpload, d)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	c := composer.New(h.client)
	c.SetText(r.PostFormValue("text"))

	img, err := formImage(r, h.maxUploadBytes)
	if errors.Is(err, errImageTooLarge) {
		h.tooLarge(w, reqID, h.data(c))
		return
	}
	if err != nil {
		d := h.data(c)
		d.Error = "The image could not be read."
		slog.Error("Failed to read submitted image", "req_id", reqID, "err", err)
		h.pages.Render(w, http.StatusBadRequest, PageUpload, d)
		return
	}
	switch {
	case img == nil:
		// An empty image field is a cleared image.
		c.SetImage(nil)
	case r.PostFormValue("image_source") == SourceDrop:
		c.DropImage(img)
	default:
		c.PickImage(img)
	}
	if c.HasImage() {
		// The preview is encoded while the analysis runs.
		c.ComputePreview()
	}

	rc, err := c.Submit(r.Context())
	switch {
	case errors.Is(err, moderation.ErrInvalidSubmission):
		d := h.data(c)
		d.Error = "Provide text or an image to submit."
		slog.Info("Empty submission ignored", "req_id", reqID)
		h.pages.Render(w, http.StatusUnprocessableEntity, PageUpload, d)
		return
	case err != nil:
		d := h.data(c)
		d.Error = "Content analysis failed. Please try again."
		d.Retry = true
		slog.Error("Content analysis failed", "req_id", reqID, "err", err)
		h.pages.Render(w, http.StatusBadGateway, PageUpload, d)
		return
	}

	id := h.store.Put(rc)
	slog.Info("Content analysed", "req_id", reqID, "decision", rc.Verdict.Decision, "result_id", id)
	http.Redirect(w, r, "/results/"+id, http.StatusSeeOther)
}

func (h *Upload) tooLarge(w http.ResponseWriter, reqID string, d uploadData) {
	d.Error = fmt.Sprintf("The submission exceeds the %dMB limit.", d.MaxUploadMB)
	slog.Warn("Submission too large", "req_id", reqID, "limit", h.maxUploadBytes)
	h.pages.Render(w, http.StatusRequestEntityTooLarge, PageUpload, d)
}

func (h *Upload) data(c *composer.Composer) uploadData {
	return uploadData{
		Text:        c.Text(),
		TextLength:  c.TextLength(),
		MaxUploadMB: h.maxUploadBytes >> 20,
		CanSubmit:   c.CanSubmit(),
	}
}

// formImage returns the image part of the form, or nil if none was attached.
// Images larger than limit bytes are refused with errImageTooLarge.
func formImage(r *http.Request, limit int64) (*moderation.Image, error) {
	f, hdr, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errImageTooLarge
	}
	if hdr.Filename == "" && len(data) == 0 {
		return nil, nil
	}

	mime := hdr.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return &moderation.Image{Filename: hdr.Filename, MIMEType: mime, Data: data}, nil
}
