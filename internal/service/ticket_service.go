package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/repository"
	"github.com/spec-kit/ticket-desk/internal/storage"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// ReportInvalidator drops cached reports after a ticket mutation.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	comments    repository.TicketCommentRepository
	attachments repository.AttachmentRepository
	profiles    repository.ProfileRepository
	store       storage.Store
	reports     ReportInvalidator
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	CommentRepo    repository.TicketCommentRepository
	AttachmentRepo repository.AttachmentRepository
	ProfileRepo    repository.ProfileRepository
	Store          storage.Store
	ReportCache    ReportInvalidator
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Now            func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Type        string
	Category    string
	Station     string
	Client      string
}

// TicketListFilter describes listing filters. Visibility is applied on top.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	Type        *string
	Category    *string
	AssignedTo  *string
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketDetails is a ticket with its conversation and files.
type TicketDetails struct {
	Ticket      *domain.Ticket
	Comments    []domain.TicketComment
	Attachments []domain.Attachment
}

// AttachmentUpload carries an uploaded file.
type AttachmentUpload struct {
	FileName string
	MimeType string
	Content  io.Reader
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		attachments: deps.AttachmentRepo,
		profiles:    deps.ProfileRepo,
		store:       deps.Store,
		reports:     deps.ReportCache,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		now:         now,
	}
}

// CreateTicket opens a ticket on behalf of the caller.
func (s *TicketService) CreateTicket(ctx context.Context, principal *domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	if principal == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		CreatedBy:   principal.UserID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    input.Priority,
		Type:        strings.TrimSpace(input.Type),
		Category:    strings.TrimSpace(input.Category),
		Station:     strings.TrimSpace(input.Station),
		Client:      strings.TrimSpace(input.Client),
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	if !ticket.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": ticket.Priority})
	}
	if ticket.Title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"title": "required"})
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidateReports(ctx)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  principal.UserID,
		Payload: events.TicketCreatedPayload{
			ExternalKey: ticket.ExternalKey,
			Title:       ticket.Title,
			Priority:    ticket.Priority,
			CreatedBy:   ticket.CreatedBy,
		},
	})
	return ticket, nil
}

// ListTickets returns a page of tickets. Admins see every ticket; other callers see
// the tickets they created or are assigned to.
func (s *TicketService) ListTickets(ctx context.Context, principal *domain.Principal, filter TicketListFilter) ([]domain.Ticket, error) {
	if principal == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	repoFilter := repository.TicketFilter{
		AssignedTo:  filter.AssignedTo,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		Type:        filter.Type,
		Category:    filter.Category,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if !principal.IsAdmin() {
		userID := principal.UserID
		repoFilter.VisibleTo = &userID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicket loads a ticket with comments and attachment metadata.
func (s *TicketService) GetTicket(ctx context.Context, principal *domain.Principal, ticketID string) (*TicketDetails, error) {
	ticket, err := s.accessibleTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	attachments, err := s.attachments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetails{Ticket: ticket, Comments: comments, Attachments: attachments}, nil
}

// UpdateStatus moves a ticket through its lifecycle. Closing stamps ClosedAt; reopening
// clears it.
func (s *TicketService) UpdateStatus(ctx context.Context, principal *domain.Principal, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	if !newStatus.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}
	ticket, err := s.accessibleTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(ticket.Status, newStatus) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   newStatus,
		})
	}

	oldStatus := ticket.Status
	if newStatus == domain.TicketStatusClosed {
		now := s.now().UTC()
		ticket.ClosedAt = &now
	} else {
		ticket.ClosedAt = nil
	}
	ticket.Status = newStatus
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidateReports(ctx)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		ActorID:  principal.UserID,
		Payload: events.TicketStatusChangedPayload{
			ExternalKey: ticket.ExternalKey,
			CreatedBy:   ticket.CreatedBy,
			OldStatus:   oldStatus,
			NewStatus:   newStatus,
		},
	})
	return ticket, nil
}

// AssignTicket sets or clears the assignee. Admin only.
func (s *TicketService) AssignTicket(ctx context.Context, principal *domain.Principal, ticketID string, assigneeID *string) (*domain.Ticket, error) {
	if principal == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !principal.IsAdmin() {
		return nil, apperrors.NewForbidden("admin role required")
	}
	if assigneeID != nil {
		trimmed := strings.TrimSpace(*assigneeID)
		if trimmed == "" {
			assigneeID = nil
		} else {
			assigneeID = &trimmed
		}
	}
	if assigneeID != nil && s.profiles != nil {
		if _, err := s.profiles.GetByID(ctx, *assigneeID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewValidationError("unknown assignee", map[string]any{"assignee_id": *assigneeID})
			}
			return nil, apperrors.MapError(err)
		}
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	ticket.AssignedTo = assigneeID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidateReports(ctx)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		ActorID:  principal.UserID,
		Payload: events.TicketAssignedPayload{
			ExternalKey: ticket.ExternalKey,
			AssigneeID:  assigneeID,
		},
	})
	return ticket, nil
}

// AddComment appends a comment to a ticket.
func (s *TicketService) AddComment(ctx context.Context, principal *domain.Principal, ticketID, body string) (*domain.TicketComment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", map[string]any{"body": "required"})
	}
	ticket, err := s.accessibleTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}

	comment := &domain.TicketComment{
		TicketID: ticket.ID,
		AuthorID: principal.UserID,
		Body:     body,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		ActorID:  principal.UserID,
		Payload: events.TicketCommentAddedPayload{
			ExternalKey: ticket.ExternalKey,
			CreatedBy:   ticket.CreatedBy,
			CommentID:   comment.ID,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
	return comment, nil
}

// AddAttachment stores an uploaded file and records its metadata.
func (s *TicketService) AddAttachment(ctx context.Context, principal *domain.Principal, ticketID string, upload AttachmentUpload) (*domain.Attachment, error) {
	fileName := strings.TrimSpace(upload.FileName)
	if fileName == "" || upload.Content == nil {
		return nil, apperrors.NewValidationError("file is required", map[string]any{"file": "required"})
	}
	ticket, err := s.accessibleTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}

	key := storage.AttachmentKey(ticket.ID, fileName)
	size, err := s.store.Save(ctx, key, upload.Content)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, apperrors.NewPayloadTooLarge("attachment exceeds upload limit")
		}
		return nil, apperrors.MapError(err)
	}

	mimeType := upload.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	attachment := &domain.Attachment{
		TicketID:   ticket.ID,
		UploadedBy: principal.UserID,
		StorageKey: key,
		FileName:   fileName,
		MimeType:   mimeType,
		SizeBytes:  size,
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("orphaned attachment object", zap.String("storage_key", key), zap.Error(delErr))
		}
		return nil, apperrors.MapError(err)
	}
	return attachment, nil
}

// OpenAttachment returns the metadata and a reader for a stored attachment.
// The caller closes the reader.
func (s *TicketService) OpenAttachment(ctx context.Context, principal *domain.Principal, ticketID, attachmentID string) (*domain.Attachment, io.ReadCloser, error) {
	ticket, err := s.accessibleTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, nil, err
	}
	attachment, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("attachment", map[string]any{"attachment_id": attachmentID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	if attachment.TicketID != ticket.ID {
		return nil, nil, apperrors.NewNotFound("attachment", map[string]any{"attachment_id": attachmentID})
	}
	rc, err := s.store.Open(ctx, attachment.StorageKey)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return attachment, rc, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// accessibleTicket hides tickets the caller may not see behind NOT_FOUND.
func (s *TicketService) accessibleTicket(ctx context.Context, principal *domain.Principal, ticketID string) (*domain.Ticket, error) {
	if principal == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canAccessTicket(principal, ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func canAccessTicket(principal *domain.Principal, ticket *domain.Ticket) bool {
	if principal.IsAdmin() {
		return true
	}
	if ticket.CreatedBy == principal.UserID {
		return true
	}
	return ticket.AssignedTo != nil && *ticket.AssignedTo == principal.UserID
}

func (s *TicketService) invalidateReports(ctx context.Context) {
	if s.reports == nil {
		return
	}
	if err := s.reports.Invalidate(ctx); err != nil {
		s.logger.Warn("report cache invalidation failed", zap.Error(err))
	}
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress, domain.TicketStatusClosed},
	domain.TicketStatusInProgress: {domain.TicketStatusOpen, domain.TicketStatusClosed},
	domain.TicketStatusClosed:     {domain.TicketStatusOpen},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
