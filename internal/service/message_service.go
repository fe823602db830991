package service

import (
	"context"
	"log"
	"time"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/metrics"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
)

// MessageService handles sending messages and number lookups through
// connected instances. Every send attempt that passes admission leaves
// exactly one audit record, whatever the gateway outcome, so the audit
// trail and the daily quota counter always agree with reality.
type MessageService struct {
	instances      InstanceStore
	messages       MessageStore
	gateway        Gateway
	ledger         *Ledger
	gatewayTimeout time.Duration
	mets           *metrics.Metrics
}

// NewMessageService creates the messaging orchestrator.
func NewMessageService(instances InstanceStore, messages MessageStore, gateway Gateway, ledger *Ledger, gatewayTimeout time.Duration, mets *metrics.Metrics) *MessageService {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 30 * time.Second
	}
	return &MessageService{
		instances:      instances,
		messages:       messages,
		gateway:        gateway,
		ledger:         ledger,
		gatewayTimeout: gatewayTimeout,
		mets:           mets,
	}
}

func (s *MessageService) gatewayCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.gatewayTimeout)
}

// Send delivers a message through a connected instance. Quota denial
// fails fast: no gateway call, no audit record. Once admitted, the
// attempt is recorded as SENT or FAILED and the admission lock is held
// until the record is written.
func (s *MessageService) Send(ctx context.Context, actor Actor, req *models.SendMessageRequest) (*models.SendMessageResponse, error) {
	inst, err := instanceForActor(ctx, s.instances, actor, req.InstanceID)
	if err != nil {
		return nil, err
	}

	if err := validateTransition(inst.Status, opSendMessage); err != nil {
		return nil, err
	}

	release, err := s.ledger.TryAdmitMessage(ctx, inst.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	from := "unknown"
	if inst.PhoneNumber != nil && *inst.PhoneNumber != "" {
		from = *inst.PhoneNumber
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()

	messageID, sendErr := s.gateway.SendText(gctx, inst.Name, req.Number, req.Message, req.MediaURL)

	record := &models.Message{
		InstanceID: inst.ID,
		To:         req.Number,
		From:       from,
		Body:       req.Message,
		Type:       msgType,
		Status:     models.MessageStatusSent,
		Timestamp:  time.Now(),
	}
	if sendErr != nil {
		record.Status = models.MessageStatusFailed
	}

	if err := s.messages.Insert(context.WithoutCancel(ctx), record); err != nil {
		// The gateway may already have delivered; losing the record
		// undercounts quota, so this is surfaced loudly.
		log.Printf("[MessageService] Failed to record message attempt for %s: %v", inst.Name, err)
		return nil, storageErr("insert message", err)
	}

	s.countMessage(record.Status)

	if sendErr != nil {
		return nil, sendErr
	}

	return &models.SendMessageResponse{
		MessageID: messageID,
		Status:    models.MessageStatusSent,
		Timestamp: record.Timestamp,
	}, nil
}

// CheckNumber asks the gateway whether a number is on WhatsApp.
// Requires a connected instance; no quota, no audit record.
func (s *MessageService) CheckNumber(ctx context.Context, actor Actor, req *models.CheckNumberRequest) (*models.CheckNumberResponse, error) {
	inst, err := instanceForActor(ctx, s.instances, actor, req.InstanceID)
	if err != nil {
		return nil, err
	}

	if err := validateTransition(inst.Status, opCheckNumber); err != nil {
		return nil, err
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()

	results, err := s.gateway.CheckNumbers(gctx, inst.Name, []string{req.Number})
	if err != nil {
		return nil, err
	}

	resp := &models.CheckNumberResponse{Number: req.Number}
	if len(results) > 0 {
		resp.IsWhatsApp = results[0].Exists
		resp.JID = results[0].JID
	}
	return resp, nil
}

// ListByInstance returns an instance's audit trail.
func (s *MessageService) ListByInstance(ctx context.Context, actor Actor, instanceID string, page, limit int) (*models.MessageListResponse, error) {
	inst, err := instanceForActor(ctx, s.instances, actor, instanceID)
	if err != nil {
		return nil, err
	}

	page, limit = normalizePage(page, limit)
	offset := (page - 1) * limit

	messages, total, err := s.messages.ListByInstance(ctx, inst.ID, limit, offset)
	if err != nil {
		return nil, storageErr("list messages", err)
	}

	resp := &models.MessageListResponse{
		Pagination: paginate(page, limit, total),
	}
	for _, msg := range messages {
		resp.Messages = append(resp.Messages, &models.MessageResponse{
			ID:         msg.ID,
			InstanceID: msg.InstanceID,
			To:         msg.To,
			From:       msg.From,
			Body:       msg.Body,
			Type:       msg.Type,
			Status:     msg.Status,
			Timestamp:  msg.Timestamp.Format(time.RFC3339),
		})
	}
	return resp, nil
}

func (s *MessageService) countMessage(status string) {
	if s.mets != nil {
		s.mets.Messages.WithLabelValues(status).Inc()
	}
}
