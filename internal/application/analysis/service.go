package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/bryanwahyu/medimaging-bridge/internal/application"
	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

// Service implements the webhook processing use-case. It is safe for
// concurrent use: each call owns its message, its temp file, and its
// single upsert; the store's atomic upsert is the only shared write.
type Service struct {
	Repo       domain.Repository
	Errors     domain.ErrorLog // optional audit trail
	Media      domain.MediaGateway
	Classifier domain.Classifier
	Notifier   domain.Notifier // optional; graph-style replies only
	TempFiles  domain.TempFiles
	Clock      application.Clock

	// Observe, when set, receives every terminal status right after its
	// record commits. The outcome counters on /metrics hook in here, so
	// queued and synchronous deliveries are counted the same way.
	Observe func(domain.Status)

	// RetainMedia opts processed media into the retention backend.
	RetainMedia bool

	Logger *slog.Logger
}

// Outcome is the terminal state of one processed message, mirrored by
// exactly one row in the store.
type Outcome struct {
	Status       domain.Status `json:"status"`
	Scores       domain.Scores `json:"scores,omitempty"`
	StorageURI   string        `json:"storage_uri,omitempty"`
	ErrorMessage string        `json:"error,omitempty"`
}

// ClassifierConfigured reports whether inference can run at all; the
// form-style transport answers 503 when it cannot.
func (s *Service) ClassifierConfigured() bool { return s.Classifier != nil }

// ProcessUntilDone runs Process detached from the request context so a
// queued job survives the webhook response.
func (s *Service) ProcessUntilDone(msg *domain.Message) (Outcome, error) {
	return s.Process(context.Background(), msg)
}

// Process drives one message through the state machine:
// received -> {ignored, processing -> {processed, error}}.
// Every terminal state commits exactly one upsert; a failed upsert is
// the only error returned to the caller.
func (s *Service) Process(ctx context.Context, msg *domain.Message) (Outcome, error) {
	log := s.logger().With("message_id", msg.ProviderMessageID)

	if msg.Media == nil {
		log.Info("message without media recorded but not analyzed")
		out := Outcome{Status: domain.StatusIgnored, Scores: domain.Scores{}}
		if err := s.persist(ctx, msg, out); err != nil {
			return out, err
		}
		s.observe(out.Status)
		return out, nil
	}

	scores, storageURI, phase, pipeErr := s.runPipeline(ctx, msg)

	var out Outcome
	if pipeErr != nil {
		log.Error("pipeline failed", "phase", phase, "error", pipeErr)
		s.audit(ctx, msg.ProviderMessageID, phase, pipeErr)
		out = Outcome{Status: domain.StatusError, ErrorMessage: pipeErr.Error()}
	} else {
		out = Outcome{Status: domain.StatusProcessed, Scores: scores, StorageURI: storageURI}
	}

	if err := s.persist(ctx, msg, out); err != nil {
		return out, err
	}
	s.observe(out.Status)

	// reply only after the record is committed; a failed send is
	// logged and audited but never flips the stored status
	if out.Status == domain.StatusProcessed && s.Notifier != nil {
		if err := s.Notifier.SendText(ctx, msg.PhoneNumberID, msg.FromNumber, Summarize(out.Scores)); err != nil {
			log.Warn("reply dispatch failed", "error", err)
			s.audit(ctx, msg.ProviderMessageID, domain.PhaseSend, err)
		}
	}
	return out, nil
}

func (s *Service) runPipeline(ctx context.Context, msg *domain.Message) (scores domain.Scores, storageURI string, phase string, err error) {
	mediaURL, err := s.Media.ResolveMediaURL(ctx, msg.Media)
	if err != nil {
		return nil, "", domain.PhaseResolve, err
	}
	// keep the resolved URL on the record even when later steps fail
	msg.Media.URL = mediaURL

	data, err := s.Media.Download(ctx, mediaURL)
	if err != nil {
		return nil, "", domain.PhaseDownload, err
	}

	suffix := suffixForContentType(msg.Media.ContentType)
	handle, err := s.TempFiles.Reserve(suffix)
	if err != nil {
		return nil, "", domain.PhaseDownload, err
	}

	scores, phase, err = func() (domain.Scores, string, error) {
		defer func() {
			if cerr := handle.Close(ctx); cerr != nil {
				s.logger().Warn("temp file finalize failed",
					"message_id", msg.ProviderMessageID, "error", cerr)
			}
		}()

		if werr := os.WriteFile(handle.Path(), data, 0o600); werr != nil {
			return nil, domain.PhaseDownload, fmt.Errorf("write media: %w", werr)
		}

		if s.Classifier == nil {
			return nil, domain.PhaseInference, domain.ErrClassifierUnavailable
		}
		result, cerr := s.Classifier.Classify(ctx, handle.Path())
		if cerr != nil {
			return nil, domain.PhaseInference, cerr
		}

		if s.RetainMedia {
			if perr := handle.Persist(msg.ProviderMessageID + suffix); perr != nil {
				if errors.Is(perr, domain.ErrRetentionUnavailable) {
					s.logger().Warn("media retention requested but no backend configured",
						"message_id", msg.ProviderMessageID)
				} else {
					s.audit(ctx, msg.ProviderMessageID, domain.PhaseRetention, perr)
				}
			}
		}
		return result, "", nil
	}()
	if err != nil {
		return nil, "", phase, err
	}

	return scores, handle.PersistedURI(), "", nil
}

// persist commits the terminal state. This is the one failure class
// that stays fatal for the request: without the row the idempotency
// guarantee is gone.
func (s *Service) persist(ctx context.Context, msg *domain.Message, out Outcome) error {
	record := &domain.Analysis{
		MessageID:      msg.ProviderMessageID,
		WhatsAppNumber: msg.FromNumber,
		Body:           msg.Body,
		Metadata:       msg.Metadata,
		Scores:         out.Scores,
		Status:         out.Status,
		StorageURI:     out.StorageURI,
		ErrorMessage:   out.ErrorMessage,
	}
	if msg.Media != nil {
		record.MediaURL = msg.Media.URL
		record.MediaContentType = msg.Media.ContentType
	}

	if _, err := s.Repo.Upsert(ctx, record); err != nil {
		s.logger().Error("persist failed", "message_id", msg.ProviderMessageID, "error", err)
		return &domain.PersistenceError{Err: err}
	}
	return nil
}

func (s *Service) audit(ctx context.Context, messageID, phase string, cause error) {
	if s.Errors == nil {
		return
	}
	entry := &domain.ProcessingError{
		MessageID: messageID,
		Phase:     phase,
		Message:   cause.Error(),
	}
	if s.Clock != nil {
		entry.CreatedAt = s.Clock.Now()
	}
	if err := s.Errors.Record(ctx, entry); err != nil {
		s.logger().Warn("error audit write failed", "message_id", messageID, "error", err)
	}
}

// AnalyzeUpload classifies an uploaded image directly, without the
// webhook lifecycle: no durable record, no reply, temp file gone when
// the call returns.
func (s *Service) AnalyzeUpload(ctx context.Context, data []byte, filename string) (domain.Scores, error) {
	if s.Classifier == nil {
		return nil, domain.ErrClassifierUnavailable
	}

	suffix := filepath.Ext(filename)
	if suffix == "" {
		suffix = ".bin"
	}
	handle, err := s.TempFiles.Reserve(suffix)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := handle.Close(ctx); cerr != nil {
			s.logger().Warn("temp file finalize failed", "error", cerr)
		}
	}()

	if err := os.WriteFile(handle.Path(), data, 0o600); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}
	return s.Classifier.Classify(ctx, handle.Path())
}

// Latest returns the newest records, default limit 20.
func (s *Service) Latest(ctx context.Context, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.Repo.Latest(ctx, limit)
}

// Get returns one record by provider message id, nil when absent.
func (s *Service) Get(ctx context.Context, messageID string) (*domain.Analysis, error) {
	return s.Repo.Get(ctx, messageID)
}

func (s *Service) observe(status domain.Status) {
	if s.Observe != nil {
		s.Observe(status)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func suffixForContentType(contentType string) string {
	if contentType == "" {
		return ".bin"
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	for _, preferred := range []string{".jpg", ".jpeg", ".png"} {
		for _, ext := range exts {
			if ext == preferred {
				return ext
			}
		}
	}
	return exts[0]
}
