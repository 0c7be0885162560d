package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/ticket-desk/internal/api/dto"
	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/service"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// TicketService is the ticket workflow used by the HTTP layer.
type TicketService interface {
	CreateTicket(ctx context.Context, principal *domain.Principal, input service.TicketCreateInput) (*domain.Ticket, error)
	ListTickets(ctx context.Context, principal *domain.Principal, filter service.TicketListFilter) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, principal *domain.Principal, ticketID string) (*service.TicketDetails, error)
	UpdateStatus(ctx context.Context, principal *domain.Principal, ticketID string, status domain.TicketStatus) (*domain.Ticket, error)
	AssignTicket(ctx context.Context, principal *domain.Principal, ticketID string, assigneeID *string) (*domain.Ticket, error)
	AddComment(ctx context.Context, principal *domain.Principal, ticketID, body string) (*domain.TicketComment, error)
	AddAttachment(ctx context.Context, principal *domain.Principal, ticketID string, upload service.AttachmentUpload) (*domain.Attachment, error)
	OpenAttachment(ctx context.Context, principal *domain.Principal, ticketID, attachmentID string) (*domain.Attachment, io.ReadCloser, error)
}

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service        TicketService
	maxUploadBytes int64
}

// NewTicketsHandler constructs handler. maxUploadBytes <= 0 disables the early size check.
func NewTicketsHandler(ticketService TicketService, maxUploadBytes int64) *TicketsHandler {
	return &TicketsHandler{service: ticketService, maxUploadBytes: maxUploadBytes}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), principal, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Type:        req.Type,
		Category:    req.Category,
		Station:     req.Station,
		Client:      req.Client,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	filter := parseTicketListQuery(c)
	tickets, err := h.service.ListTickets(c.UserContext(), principal, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := ticketParam(c)
	if err != nil {
		return err
	}
	details, err := h.service.GetTicket(c.UserContext(), principal, ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(details)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := ticketParam(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.UpdateStatus(c.UserContext(), principal, ticketID, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AssignTicket PATCH /tickets/:id/assignee.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := ticketParam(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.AssignTicket(c.UserContext(), principal, ticketID, req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := ticketParam(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	comment, err := h.service.AddComment(c.UserContext(), principal, ticketID, req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

// UploadAttachment POST /tickets/:id/attachments (multipart field "file").
func (h *TicketsHandler) UploadAttachment(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := ticketParam(c)
	if err != nil {
		return err
	}
	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("file is required", map[string]any{"file": "required"})
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		return apperrors.NewPayloadTooLarge("attachment exceeds upload limit")
	}
	file, err := header.Open()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer file.Close()

	attachment, err := h.service.AddAttachment(c.UserContext(), principal, ticketID, service.AttachmentUpload{
		FileName: header.Filename,
		MimeType: header.Header.Get(fiber.HeaderContentType),
		Content:  file,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": attachmentResponse(attachment)})
}

// DownloadAttachment GET /tickets/:id/attachments/:attachmentId.
func (h *TicketsHandler) DownloadAttachment(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := ticketParam(c)
	if err != nil {
		return err
	}
	attachmentID, err := uuidParam(c, "attachmentId", "attachment")
	if err != nil {
		return err
	}
	attachment, body, err := h.service.OpenAttachment(c.UserContext(), principal, ticketID, attachmentID)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, attachment.MimeType)
	c.Set(fiber.HeaderContentDisposition, contentDisposition(attachment.FileName))
	return c.SendStream(body, int(attachment.SizeBytes))
}

func requirePrincipal(c *fiber.Ctx) (*domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func ticketParam(c *fiber.Ctx) (string, error) {
	return uuidParam(c, "id", "ticket")
}

// uuidParam reads a UUID path parameter. Anything else cannot name a stored row.
func uuidParam(c *fiber.Ctx, name, resource string) (string, error) {
	raw := c.Params(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apperrors.NewNotFound(resource, map[string]any{name: raw})
	}
	return id.String(), nil
}

func parseTicketListQuery(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{
		Type:        optionalString(c.Query("type")),
		Category:    optionalString(c.Query("category")),
		AssignedTo:  optionalUUID(c.Query("assigned_to")),
		SearchTerm:  optionalString(c.Query("search")),
		CreatedFrom: parseDate(c.Query("created_from"), false),
		CreatedTo:   parseDate(c.Query("created_to"), true),
	}
	for _, part := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(part))
	}
	for _, part := range splitList(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(part))
	}
	filter.Limit, filter.Offset = pagination(c)
	return filter
}

func contentDisposition(fileName string) string {
	safe := strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r > 0x7e {
			return '_'
		}
		return r
	}, fileName)
	return fmt.Sprintf(`attachment; filename="%s"`, safe)
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	summary := dto.TicketSummary{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		Title:       ticket.Title,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		Type:        ticket.Type,
		Category:    ticket.Category,
		Station:     ticket.Station,
		Client:      ticket.Client,
		CreatedBy:   ticket.CreatedBy,
		AssignedTo:  ticket.AssignedTo,
		UpdatedAt:   ticket.UpdatedAt,
		ClosedAt:    ticket.ClosedAt,
	}
	if !ticket.CreatedAt.IsZero() {
		created := ticket.CreatedAt
		summary.CreatedAt = &created
	}
	return summary
}

func ticketDetail(details *service.TicketDetails) dto.TicketDetailResponse {
	comments := make([]dto.CommentResponse, 0, len(details.Comments))
	for i := range details.Comments {
		comments = append(comments, commentResponse(&details.Comments[i]))
	}
	attachments := make([]dto.AttachmentResponse, 0, len(details.Attachments))
	for i := range details.Attachments {
		attachments = append(attachments, attachmentResponse(&details.Attachments[i]))
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(details.Ticket),
		Description:   details.Ticket.Description,
		Comments:      comments,
		Attachments:   attachments,
	}
}

func commentResponse(comment *domain.TicketComment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:        comment.ID,
		AuthorID:  comment.AuthorID,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}
}

func attachmentResponse(att *domain.Attachment) dto.AttachmentResponse {
	return dto.AttachmentResponse{
		ID:         att.ID,
		FileName:   att.FileName,
		MimeType:   att.MimeType,
		SizeBytes:  att.SizeBytes,
		UploadedBy: att.UploadedBy,
		CreatedAt:  att.CreatedAt,
	}
}
