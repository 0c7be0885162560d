package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/mail"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/repository"
)

// Email templates, also used as metric labels.
const (
	TemplateTicketCreated  = "ticket_created"
	TemplateStatusChanged  = "ticket_status_changed"
	TemplateTicketAssigned = "ticket_assigned"
	TemplateCommentAdded   = "ticket_comment_added"
)

// NotificationService turns domain events into emails.
type NotificationService struct {
	dispatcher  events.Dispatcher
	mailer      mail.Mailer
	profiles    repository.ProfileRepository
	adminEmails []string
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NotificationDependencies bundles collaborators for notifications.
type NotificationDependencies struct {
	Dispatcher  events.Dispatcher
	Mailer      mail.Mailer
	ProfileRepo repository.ProfileRepository
	AdminEmails []string
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:  deps.Dispatcher,
		mailer:      deps.Mailer,
		profiles:    deps.ProfileRepo,
		adminEmails: deps.AdminEmails,
		metrics:     deps.Metrics,
		logger:      logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketCommentAdded, n.handleTicketCommentAdded)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.String("key", payload.ExternalKey))

	recipients, err := n.adminRecipients(ctx, event.ActorID)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}
	return n.send(ctx, mail.Message{
		To:       recipients,
		Subject:  fmt.Sprintf("[%s] New %s priority ticket", payload.ExternalKey, payload.Priority),
		Body:     fmt.Sprintf("A new ticket was opened.\n\n%s\nPriority: %s\n", payload.Title, payload.Priority),
		Template: TemplateTicketCreated,
	})
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("TicketStatusChanged",
		zap.String("ticket_id", event.TicketID),
		zap.String("old_status", string(payload.OldStatus)),
		zap.String("new_status", string(payload.NewStatus)))

	if payload.CreatedBy == event.ActorID {
		return nil
	}
	return n.sendToProfile(ctx, payload.CreatedBy, mail.Message{
		Subject:  fmt.Sprintf("[%s] Status changed to %s", payload.ExternalKey, payload.NewStatus),
		Body:     fmt.Sprintf("Your ticket %s moved from %s to %s.\n", payload.ExternalKey, payload.OldStatus, payload.NewStatus),
		Template: TemplateStatusChanged,
	})
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("TicketAssigned", zap.String("ticket_id", event.TicketID))

	if payload.AssigneeID == nil || *payload.AssigneeID == event.ActorID {
		return nil
	}
	return n.sendToProfile(ctx, *payload.AssigneeID, mail.Message{
		Subject:  fmt.Sprintf("[%s] Ticket assigned to you", payload.ExternalKey),
		Body:     fmt.Sprintf("Ticket %s has been assigned to you.\n", payload.ExternalKey),
		Template: TemplateTicketAssigned,
	})
}

func (n *NotificationService) handleTicketCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCommentAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("TicketCommentAdded", zap.String("ticket_id", event.TicketID), zap.String("comment_id", payload.CommentID))

	if payload.CreatedBy == event.ActorID {
		return nil
	}
	return n.sendToProfile(ctx, payload.CreatedBy, mail.Message{
		Subject:  fmt.Sprintf("[%s] New comment", payload.ExternalKey),
		Body:     fmt.Sprintf("A new comment was added to %s:\n\n%s\n", payload.ExternalKey, payload.BodyPreview),
		Template: TemplateCommentAdded,
	})
}

func (n *NotificationService) sendToProfile(ctx context.Context, profileID string, msg mail.Message) error {
	if n.profiles == nil || profileID == "" {
		return nil
	}
	profile, err := n.profiles.GetByID(ctx, profileID)
	if err != nil {
		return fmt.Errorf("load profile %s: %w", profileID, err)
	}
	msg.To = []string{profile.Email}
	return n.send(ctx, msg)
}

// adminRecipients merges admin profiles with the configured admin addresses, minus the actor.
func (n *NotificationService) adminRecipients(ctx context.Context, actorID string) ([]string, error) {
	normalize := func(addr string) string { return strings.ToLower(strings.TrimSpace(addr)) }
	seen := map[string]struct{}{}
	for _, addr := range n.adminEmails {
		if addr = normalize(addr); addr != "" {
			seen[addr] = struct{}{}
		}
	}
	var actorEmail string
	if n.profiles != nil {
		admins, err := n.profiles.ListByRole(ctx, domain.RoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("list admins: %w", err)
		}
		for _, admin := range admins {
			addr := normalize(admin.Email)
			if actorID != "" && admin.ID == actorID {
				actorEmail = addr
				continue
			}
			if addr != "" {
				seen[addr] = struct{}{}
			}
		}
	}
	delete(seen, actorEmail)

	out := make([]string, 0, len(seen))
	for addr := range seen {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out, nil
}

func (n *NotificationService) send(ctx context.Context, msg mail.Message) error {
	if n.mailer == nil {
		return nil
	}
	err := n.mailer.Send(ctx, msg)
	if errors.Is(err, mail.ErrNoRecipients) {
		n.logger.Debug("notification skipped, no recipients", zap.String("template", msg.Template))
		return nil
	}
	n.metrics.RecordEmail(msg.Template, err)
	return err
}
