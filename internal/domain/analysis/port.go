package analysis

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	// Upsert writes exactly one row per message_id: insert on first
	// delivery, full overwrite of the mutable columns on redelivery.
	Upsert(ctx context.Context, a *Analysis) (int64, error)
	Get(ctx context.Context, messageID string) (*Analysis, error)
	Latest(ctx context.Context, limit int) ([]*Analysis, error)
}

// ErrorLog port: audit trail of pipeline failures per phase.
type ErrorLog interface {
	Record(ctx context.Context, e *ProcessingError) error
}

// ErrorLogReader lists recorded failures for one message, newest
// first. Limit <= 0 means the implementation default.
type ErrorLogReader interface {
	ListByMessage(ctx context.Context, messageID string, limit int) ([]*ProcessingError, error)
}

// Classifier port: the external model, consumed only through
// predict(image path) -> scores.
type Classifier interface {
	Classify(ctx context.Context, imagePath string) (Scores, error)
}

// MediaGateway port (provider media API)
type MediaGateway interface {
	// ResolveMediaURL returns ref.URL unchanged when present, otherwise
	// consults the provider's media-metadata endpoint for ref.ID.
	ResolveMediaURL(ctx context.Context, ref *MediaRef) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Notifier port (provider outbound messaging API)
type Notifier interface {
	SendText(ctx context.Context, phoneNumberID, to, text string) error
}

// TemporaryFile is a scoped handle: exactly one finalize per handle,
// on every exit path. Close deletes the file unless Persist was called
// and a retention target exists, in which case the file is moved or
// uploaded and a locator is kept.
type TemporaryFile interface {
	Path() string
	Persist(name string) error
	PersistedURI() string
	Close(ctx context.Context) error
}

// TempFiles port
type TempFiles interface {
	Reserve(suffix string) (TemporaryFile, error)
}
