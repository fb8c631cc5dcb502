package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const user = "me"

// metadataHeaders are the headers requested with format=metadata
var metadataHeaders = []string{"From", "To", "Cc", "Delivered-To", "Reply-To", "Subject", "Date", "Message-ID"}

// Config selects how the service authenticates against Gmail.
// CredentialsFile (service account with domain-wide delegation) wins over the
// OAuth refresh token.
type Config struct {
	CredentialsFile string
	ClientID        string
	ClientSecret    string
	RefreshToken    string
	CallTimeout     time.Duration
}

// ClientFactory builds a Gmail API client for one mailbox
type ClientFactory func(ctx context.Context, mailboxID string) (*gmail.Service, error)

// Service is the Gmail provider used by the sync engine. Clients are created
// lazily per mailbox and cached until Invalidate.
type Service struct {
	cfg           Config
	factory       ClientFactory
	customFactory bool
	log           zerolog.Logger

	mu      sync.Mutex
	clients map[string]*gmail.Service
}

type Option func(*Service)

// WithClientFactory replaces the credential based client construction
func WithClientFactory(f ClientFactory) Option {
	return func(s *Service) {
		s.factory = f
		s.customFactory = true
	}
}

func NewService(cfg Config, log zerolog.Logger, opts ...Option) *Service {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	s := &Service{
		cfg:     cfg,
		log:     log,
		clients: make(map[string]*gmail.Service),
	}
	s.factory = s.newClient
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether any credentials (or a custom factory) are available
func (s *Service) Configured() bool {
	if s.cfg.CredentialsFile != "" {
		return true
	}
	if s.cfg.ClientID != "" && s.cfg.ClientSecret != "" && s.cfg.RefreshToken != "" {
		return true
	}
	return s.customFactory
}

// Invalidate drops the cached client so the next call re-authenticates
func (s *Service) Invalidate(mailboxID string) {
	s.mu.Lock()
	delete(s.clients, mailboxID)
	s.mu.Unlock()
}

func (s *Service) client(ctx context.Context, mailboxID string) (*gmail.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if srv, ok := s.clients[mailboxID]; ok {
		return srv, nil
	}
	srv, err := s.factory(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	s.clients[mailboxID] = srv
	return srv, nil
}

// newClient builds an authenticated client. The token source is bound to a
// background context because the client outlives the request that created it.
func (s *Service) newClient(_ context.Context, mailboxID string) (*gmail.Service, error) {
	bg := context.Background()

	var httpClient *http.Client
	switch {
	case s.cfg.CredentialsFile != "":
		data, err := os.ReadFile(s.cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read credentials: %v", domain.ErrConfiguration, err)
		}
		jwtCfg, err := google.JWTConfigFromJSON(data, gmail.GmailReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("%w: parse credentials: %v", domain.ErrConfiguration, err)
		}
		jwtCfg.Subject = mailboxID
		httpClient = jwtCfg.Client(bg)
	case s.cfg.ClientID != "" && s.cfg.ClientSecret != "" && s.cfg.RefreshToken != "":
		oauthCfg := &oauth2.Config{
			ClientID:     s.cfg.ClientID,
			ClientSecret: s.cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailReadonlyScope},
		}
		httpClient = oauthCfg.Client(bg, &oauth2.Token{RefreshToken: s.cfg.RefreshToken, TokenType: "Bearer"})
	default:
		return nil, fmt.Errorf("%w: no Gmail credentials configured", domain.ErrConfiguration)
	}

	srv, err := gmail.NewService(bg, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// call runs fn with a per-call timeout. A 401 drops the cached client and
// retries once with fresh credentials.
func (s *Service) call(ctx context.Context, mailboxID string, fn func(ctx context.Context, srv *gmail.Service) error) error {
	for attempt := 0; ; attempt++ {
		srv, err := s.client(ctx, mailboxID)
		if err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		err = fn(callCtx, srv)
		cancel()

		if err != nil && attempt == 0 && statusCode(err) == http.StatusUnauthorized {
			s.log.Warn().Str("mailbox", mailboxID).Msg("gmail credentials rejected, rebuilding client")
			s.Invalidate(mailboxID)
			continue
		}
		return err
	}
}

// ListHistory returns one page of messageAdded history records after req.StartCursor
func (s *Service) ListHistory(ctx context.Context, req domain.HistoryRequest) (*domain.HistoryPage, error) {
	var resp *gmail.ListHistoryResponse
	err := s.call(ctx, req.MailboxID, func(ctx context.Context, srv *gmail.Service) error {
		q := srv.Users.History.List(user).
			StartHistoryId(req.StartCursor).
			HistoryTypes("messageAdded").
			Context(ctx)
		if req.LabelID != "" {
			q = q.LabelId(req.LabelID)
		}
		if req.PageToken != "" {
			q = q.PageToken(req.PageToken)
		}
		var err error
		resp, err = q.Do()
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return nil, err
		}
		if statusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: start %d for %s", domain.ErrCursorExpired, req.StartCursor, req.MailboxID)
		}
		return nil, &domain.TransientFetchError{Op: "history.list", MailboxID: req.MailboxID, Err: err}
	}

	page := &domain.HistoryPage{
		NextPageToken: resp.NextPageToken,
		HistoryID:     resp.HistoryId,
		Records:       make([]domain.HistoryRecord, 0, len(resp.History)),
	}
	for _, h := range resp.History {
		rec := domain.HistoryRecord{ID: h.Id}
		for _, added := range h.MessagesAdded {
			if added == nil || added.Message == nil || added.Message.Id == "" {
				continue
			}
			rec.MessagesAdded = append(rec.MessagesAdded, domain.MessageRef{
				ID:        added.Message.Id,
				ThreadID:  added.Message.ThreadId,
				LabelIDs:  added.Message.LabelIds,
				HistoryID: h.Id,
			})
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

// GetMessage fetches message metadata (headers, labels, snippet); never the body
func (s *Service) GetMessage(ctx context.Context, mailboxID, messageID string) (*domain.ProviderMessage, error) {
	var msg *gmail.Message
	err := s.call(ctx, mailboxID, func(ctx context.Context, srv *gmail.Service) error {
		var err error
		msg, err = srv.Users.Messages.Get(user, messageID).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return nil, err
		}
		if permanentMessageFailure(err) {
			return nil, fmt.Errorf("%w: %s (status %d)", domain.ErrMessageGone, messageID, statusCode(err))
		}
		return nil, &domain.TransientFetchError{Op: "messages.get " + messageID, MailboxID: mailboxID, Err: err}
	}
	return convertMessage(msg), nil
}

// Watch registers push notifications for the mailbox on topic
func (s *Service) Watch(ctx context.Context, mailboxID string, req domain.WatchRequest) (*domain.WatchResponse, error) {
	var resp *gmail.WatchResponse
	err := s.call(ctx, mailboxID, func(ctx context.Context, srv *gmail.Service) error {
		var err error
		resp, err = srv.Users.Watch(user, &gmail.WatchRequest{
			TopicName:         req.Topic,
			LabelIds:          req.LabelIDs,
			LabelFilterAction: req.LabelFilterAction,
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("unable to watch mailbox %s: %w", mailboxID, err)
	}

	out := &domain.WatchResponse{HistoryID: resp.HistoryId}
	if resp.Expiration > 0 {
		exp := time.UnixMilli(resp.Expiration).UTC()
		out.Expiration = &exp
	}
	s.log.Info().
		Str("mailbox", mailboxID).
		Uint64("history_id", resp.HistoryId).
		Int64("expiration", resp.Expiration).
		Msg("watch registered")
	return out, nil
}

// Stop stops push notifications for the mailbox
func (s *Service) Stop(ctx context.Context, mailboxID string) error {
	err := s.call(ctx, mailboxID, func(ctx context.Context, srv *gmail.Service) error {
		return srv.Users.Stop(user).Context(ctx).Do()
	})
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return err
		}
		return fmt.Errorf("unable to stop mailbox watch for %s: %w", mailboxID, err)
	}
	return nil
}

func convertMessage(msg *gmail.Message) *domain.ProviderMessage {
	out := &domain.ProviderMessage{
		ID:        msg.Id,
		ThreadID:  msg.ThreadId,
		HistoryID: msg.HistoryId,
		Snippet:   msg.Snippet,
		LabelIDs:  msg.LabelIds,
	}
	if msg.InternalDate > 0 {
		out.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload != nil {
		out.Headers = make(domain.HeaderList, 0, len(msg.Payload.Headers))
		for _, h := range msg.Payload.Headers {
			if h == nil {
				continue
			}
			out.Headers = append(out.Headers, domain.Header{Name: h.Name, Value: h.Value})
		}
	}
	return out
}

// rateLimitReasons are the 403 reasons Gmail uses for quota throttling
var rateLimitReasons = map[string]struct{}{
	"rateLimitExceeded":     {},
	"userRateLimitExceeded": {},
	"dailyLimitExceeded":    {},
	"quotaExceeded":         {},
}

// permanentMessageFailure reports whether a messages.get error will not go
// away on retry: the message is deleted (404, 410), malformed (400) or not
// readable (403 other than throttling). 401, 429, 5xx and transport errors
// are retryable.
func permanentMessageFailure(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusNotFound, http.StatusGone, http.StatusBadRequest:
		return true
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if _, ok := rateLimitReasons[item.Reason]; ok {
				return false
			}
		}
		return true
	}
	return false
}

func statusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
