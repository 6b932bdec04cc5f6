// Package composer holds the state of a single content submission from first edit until its verdict is received.
package composer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ubuntu/decorate"
	"github.com/ubuntu/ubuntu-moderation/internal/analysis"
	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
)

// State is the lifecycle stage of a Composer.
type State int

const (
	// Idle is the state of a fresh composer, or one whose last analysis failed.
	Idle State = iota
	// Validating is entered on any edit.
	Validating
	// Submitting is held while the analysis is in flight.
	Submitting
	// Done is terminal. The composer is not reused after a verdict.
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Done:
		return "done"
	}
	return "unknown"
}

var (
	// ErrSubmissionInFlight is returned when submitting while a previous submission has not completed.
	ErrSubmissionInFlight = errors.New("a submission is already in flight")

	// ErrComposerDone is returned when submitting through a composer which already received a verdict.
	ErrComposerDone = errors.New("composer already received a verdict")
)

type options struct {
	now func() time.Time
}

// Options represents an optional function to override Composer default values.
type Options func(*options)

// Composer collects a submission and sends it for analysis. It is safe for concurrent use.
type Composer struct {
	client analysis.Client
	now    func() time.Time

	mu    sync.Mutex
	state State
	text  string
	image *moderation.Image
	// gen is bumped on every image change so that previews of replaced images are discarded.
	gen uint64
}

// New returns an idle composer sending its submission to client.
func New(client analysis.Client, args ...Options) *Composer {
	opts := options{now: time.Now}
	for _, opt := range args {
		opt(&opts)
	}
	return &Composer{client: client, now: opts.now}
}

// SetText replaces the text of the submission.
func (c *Composer) SetText(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.editable() {
		return
	}
	c.text = s
	c.state = Validating
}

// SetImage attaches img to the submission, replacing any previous one. A nil img clears the image and its preview.
func (c *Composer) SetImage(img *moderation.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.editable() {
		return
	}
	c.gen++
	c.state = Validating
	if img == nil {
		c.image = nil
		return
	}
	cp := *img
	cp.Preview = ""
	c.image = &cp
}

// PickImage attaches an image chosen through a file picker. The picker is trusted to filter types.
func (c *Composer) PickImage(img *moderation.Image) {
	c.SetImage(img)
}

// DropImage attaches a dropped file if its media type is an image, and reports whether it was accepted.
// Non image files are silently ignored.
func (c *Composer) DropImage(img *moderation.Image) bool {
	if img == nil || !moderation.IsImageMIME(img.MIMEType) {
		slog.Debug("Ignoring dropped file which is not an image")
		return false
	}
	c.SetImage(img)
	return true
}

// ComputePreview derives the preview of the current image in the background.
// The returned channel receives the preview, or is closed without a value if there is no image
// or if the image changed before the preview was ready.
func (c *Composer) ComputePreview() <-chan string {
	ch := make(chan string, 1)

	c.mu.Lock()
	if c.image == nil {
		c.mu.Unlock()
		close(ch)
		return ch
	}
	img, gen := *c.image, c.gen
	c.mu.Unlock()

	go func() {
		defer close(ch)
		preview := img.DataURL()

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || c.image == nil {
			slog.Debug("Discarding stale image preview")
			return
		}
		c.image.Preview = preview
		ch <- preview
	}()
	return ch
}

// Preview returns the current image preview, or an empty string if none is ready.
func (c *Composer) Preview() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.image == nil {
		return ""
	}
	return c.image.Preview
}

// Text returns the current text.
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// TextLength is the live character count of the text.
func (c *Composer) TextLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return utf8.RuneCountInString(c.text)
}

// HasImage reports whether an image is attached.
func (c *Composer) HasImage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.image != nil
}

// IsValid reports whether the submission has non-blank text or an image.
func (c *Composer) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payload().Validate() == nil
}

// CanSubmit reports whether Submit would send the submission.
func (c *Composer) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editable() && c.payload().Validate() == nil
}

// State returns the current lifecycle state.
func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit sends the submission for analysis and waits for its verdict.
//
// An invalid submission is a no-op returning moderation.ErrInvalidSubmission.
// On analysis failure the composer goes back to Idle and can be submitted again.
// On success the composer is Done and the returned context can be handed to the result presenter.
// Its image preview is the one started by ComputePreview when ready, and is derived inline otherwise.
func (c *Composer) Submit(ctx context.Context) (rc *moderation.ResultContext, err error) {
	defer decorate.OnError(&err, "could not submit content")

	c.mu.Lock()
	switch c.state {
	case Submitting:
		c.mu.Unlock()
		return nil, ErrSubmissionInFlight
	case Done:
		c.mu.Unlock()
		return nil, ErrComposerDone
	}
	payload := c.payload()
	if err := payload.Validate(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	payload.SubmittedAt = c.now()
	c.state = Submitting
	c.mu.Unlock()

	slog.Debug("Submitting content for analysis", "has_text", payload.HasText(), "has_image", payload.HasImage())
	v, err := c.client.Analyze(ctx, payload)
	if err == nil && !v.Consistent(payload) {
		err = errors.New("image analysis does not match submission")
	}
	if err != nil {
		c.setState(Idle)
		if !errors.Is(err, moderation.ErrAnalysisFailed) {
			err = errors.Join(moderation.ErrAnalysisFailed, err)
		}
		return nil, err
	}

	if payload.Image != nil {
		payload.Image.Preview = c.finalPreview(payload.Image)
	}
	c.setState(Done)
	return &moderation.ResultContext{Payload: payload, Verdict: v}, nil
}

// finalPreview returns the preview computed by ComputePreview, or derives it from img if it is not ready yet.
// The image cannot change while submitting.
func (c *Composer) finalPreview(img *moderation.Image) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.image != nil && c.image.Preview != "" {
		return c.image.Preview
	}
	p := img.DataURL()
	if c.image != nil {
		c.image.Preview = p
	}
	return p
}

func (c *Composer) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Composer) editable() bool {
	return c.state != Submitting && c.state != Done
}

// payload snapshots the current submission. The caller must hold mu.
func (c *Composer) payload() moderation.SubmissionPayload {
	p := moderation.SubmissionPayload{Text: c.text}
	if c.image != nil {
		img := *c.image
		p.Image = &img
	}
	return p
}
