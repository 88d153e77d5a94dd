package summarization

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/gowebpki/jcs"
	"github.com/neilberkman/groupsum/internal/core/config"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/llm"
	"github.com/neilberkman/groupsum/internal/core/logging"
	"github.com/neilberkman/groupsum/internal/core/models"
	"github.com/zeebo/blake3"
)

// ErrGroupNotFound is returned when the room has no groups row for the account.
var ErrGroupNotFound = errors.New("group not found")

// SystemPrompt is sent as the system message of every summary request.
const SystemPrompt = `You are a group chat analyst. Produce a structured digest of the chat history you are given:
1. Title the digest "Group chat highlights".
2. Identify the 3-5 main topics, most discussed first.
3. For each topic give its time range, a short summary and a brief comment.
4. Pick out memorable or funny exchanges.
5. List tools, links and opinions that were mentioned.
6. List open follow-ups.
Write in a natural, conversational tone in the language the group uses.`

const (
	promptTimeLayout = "2006-01-02 15:04:05"
	previewCount     = 3
)

type Config struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
	PromptTemplate string
}

// Result is the outcome of one summary generation.
type Result struct {
	Empty        bool // no messages after the watermark; nothing was written
	Text         string
	SummaryID    int64
	MessageCount int
	WindowStart  time.Time
	WindowEnd    time.Time
}

// BackendError is a failed model call together with the window it covered.
type BackendError struct {
	RoomID       string
	MessageCount int
	WindowStart  time.Time
	WindowEnd    time.Time
	Preview      []string // first message bodies of the window
	Err          error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("summarize %s: %d messages %s ~ %s: %v", e.RoomID, e.MessageCount,
		e.WindowStart.Format(time.RFC3339), e.WindowEnd.Format(time.RFC3339), e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// LogValue renders the error with its request context for structured logs.
func (e *BackendError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("room_id", e.RoomID),
		slog.Int("message_count", e.MessageCount),
		slog.Time("window_start", e.WindowStart),
		slog.Time("window_end", e.WindowEnd),
		slog.Any("preview", e.Preview),
		slog.String("error", e.Err.Error()),
	}
	var be *llm.BackendError
	if errors.As(e.Err, &be) && be.StatusCode != 0 {
		attrs = append(attrs, slog.Int("status", be.StatusCode), slog.String("body", be.Body))
	}
	return slog.GroupValue(attrs...)
}

// Summarizer turns the unsummarized window of a group into a digest.
type Summarizer struct {
	db       *db.DB
	provider llm.Provider
	cfg      Config
	logger   *slog.Logger
}

func New(database *db.DB, provider llm.Provider, cfg Config, logger *slog.Logger) *Summarizer {
	if cfg.PromptTemplate == "" {
		cfg.PromptTemplate = config.DefaultPromptTemplate
	}
	return &Summarizer{
		db:       database,
		provider: provider,
		cfg:      cfg,
		logger:   logging.OrDiscard(logger),
	}
}

// GenerateSummary summarizes the messages of roomID newer than the group's
// watermark. On success the watermark moves to the last summarized message
// and a summaries row is appended, both in one transaction.
func (s *Summarizer) GenerateSummary(ctx context.Context, roomID, accountID string) (Result, error) {
	w, err := s.PrepareRequest(ctx, roomID, accountID, false)
	if err != nil {
		return Result{}, err
	}
	group, msgs, req := w.Group, w.Messages, w.Request
	if len(msgs) == 0 {
		s.logger.Info("no new messages to summarize", "room_id", roomID, "group", group.Name)
		return Result{Empty: true}, nil
	}

	start, end := w.Start(), w.End()
	s.logger.Debug("calling summary backend",
		"provider", s.provider.Name(), "model", req.Model,
		"room_id", roomID, "message_count", len(msgs),
		"window_start", start, "window_end", end)

	callCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	resp, err := s.provider.Complete(callCtx, req)
	if err != nil {
		berr := &BackendError{
			RoomID:       roomID,
			MessageCount: len(msgs),
			WindowStart:  start,
			WindowEnd:    end,
			Preview:      preview(msgs),
			Err:          err,
		}
		s.logger.Error("summary generation failed", "details", berr)
		return Result{}, berr
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	sum := &models.Summary{
		RoomID:       roomID,
		AccountID:    accountID,
		Hash:         hashText(resp.Text),
		PromptDigest: w.Digest,
		Text:         resp.Text,
		StartTime:    start,
		EndTime:      end,
		MessageCount: len(msgs),
		Model:        model,
	}
	err = s.db.WithTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.AdvanceWatermark(ctx, roomID, accountID, end); err != nil {
			return err
		}
		return tx.InsertSummary(ctx, sum)
	})
	if err != nil {
		return Result{}, fmt.Errorf("store summary for %s: %w", roomID, err)
	}

	s.logger.Info("summary generated", "room_id", roomID, "group", group.Name,
		"summary_id", sum.ID, "message_count", len(msgs))
	return Result{
		Text:         resp.Text,
		SummaryID:    sum.ID,
		MessageCount: len(msgs),
		WindowStart:  start,
		WindowEnd:    end,
	}, nil
}

// Window is the request for one summary, built from stored messages before
// the backend is called.
type Window struct {
	Group    *models.Group
	Messages []*models.Message // ascending; empty when there is nothing to summarize
	Request  llm.Request
	Digest   string
}

func (w *Window) Start() time.Time { return w.Messages[0].Timestamp }

func (w *Window) End() time.Time { return w.Messages[len(w.Messages)-1].Timestamp }

// PrepareRequest builds the request GenerateSummary would send for roomID
// without calling the backend or moving the watermark. With all set the
// window covers the room's whole stored history.
func (s *Summarizer) PrepareRequest(ctx context.Context, roomID, accountID string, all bool) (*Window, error) {
	group, err := s.db.GetGroup(ctx, roomID, accountID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, roomID)
	}
	if err != nil {
		return nil, err
	}

	after := group.LastSummaryTime
	if all {
		after = time.Time{}
	}
	msgs, err := s.db.MessagesAfter(ctx, roomID, accountID, after)
	if err != nil {
		return nil, err
	}
	w := &Window{Group: group, Messages: msgs}
	if len(msgs) == 0 {
		return w, nil
	}

	prompt, err := s.BuildPrompt(group.Name, msgs)
	if err != nil {
		return nil, err
	}
	w.Request = llm.Request{
		Model:       s.cfg.Model,
		System:      SystemPrompt,
		Prompt:      prompt,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}
	if w.Digest, err = requestDigest(w.Request); err != nil {
		return nil, err
	}
	return w, nil
}

// BuildPrompt renders the user prompt for msgs, which must be in ascending
// time order.
func (s *Summarizer) BuildPrompt(groupName string, msgs []*models.Message) (string, error) {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = fmt.Sprintf("[%s] %s: %s", m.Timestamp.UTC().Format(promptTimeLayout), m.SenderName, m.Content)
	}
	out, err := mustache.Render(s.cfg.PromptTemplate, map[string]any{
		"room":       groupName,
		"start":      msgs[0].Timestamp.UTC().Format(promptTimeLayout),
		"end":        msgs[len(msgs)-1].Timestamp.UTC().Format(promptTimeLayout),
		"count":      len(msgs),
		"transcript": strings.Join(lines, "\n"),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return out, nil
}

func preview(msgs []*models.Message) []string {
	n := min(len(msgs), previewCount)
	out := make([]string, n)
	for i := range n {
		out[i] = msgs[i].Content
	}
	return out
}

func hashText(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// requestDigest identifies the exact request sent to the backend: the
// blake3 hash of its RFC 8785 canonical JSON.
func requestDigest(req llm.Request) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize request: %w", err)
	}
	return hashText(string(canonical)), nil
}
