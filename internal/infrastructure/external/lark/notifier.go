package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// Receive ID types understood by the IM message API
const (
	receiveIDTypeOpenID = "open_id"
	receiveIDTypeEmail  = "email"
)

// messageCreator is the slice of the IM API the notifier needs
type messageCreator interface {
	Create(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error)
}

// Notifier implements port.ApproverNotifier over Lark IM text messages
type Notifier struct {
	messages messageCreator
	logger   *zap.Logger
}

// NewNotifier creates a notifier sending through the given SDK client
func NewNotifier(client *SDKClient, logger *zap.Logger) *Notifier {
	return &Notifier{
		messages: client.GetClient().Im.Message,
		logger:   logger,
	}
}

// NotifyApprovalRequested messages the approver by open_id, or by email when no open_id is known
func (n *Notifier) NotifyApprovalRequested(ctx context.Context, approver *entity.Employee, expense *entity.Expense, record *entity.ApprovalRecord) error {
	receiveIDType, receiveID := recipient(approver)
	if receiveID == "" {
		return fmt.Errorf("approver %d has neither a lark open_id nor an email", approver.ID)
	}

	content, err := textContent(approvalText(expense, record))
	if err != nil {
		return err
	}

	messageID, err := n.send(ctx, receiveIDType, receiveID, content)
	if err != nil {
		return err
	}

	n.logger.Info("Approval request sent",
		zap.String("message_id", messageID),
		zap.Int64("approver_id", approver.ID),
		zap.Int64("expense_id", expense.ID),
		zap.Int64("record_id", record.ID))
	return nil
}

func (n *Notifier) send(ctx context.Context, receiveIDType, receiveID, content string) (string, error) {
	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType("text").
			Content(content).
			Build()).
		Build()

	resp, err := n.messages.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send message",
			zap.String("receive_id", receiveID),
			zap.Error(err))
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		n.logger.Error("API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	return messageID, nil
}

func recipient(approver *entity.Employee) (string, string) {
	if approver.LarkOpenID != "" {
		return receiveIDTypeOpenID, approver.LarkOpenID
	}
	return receiveIDTypeEmail, approver.Email
}

func approvalText(expense *entity.Expense, record *entity.ApprovalRecord) string {
	return fmt.Sprintf("Expense #%d awaits your approval (step %d)\n%s: %s %s\n%s\nDate: %s",
		expense.ID,
		record.Step,
		expense.Category,
		expense.AmountOriginal.String(),
		expense.CurrencyOriginal,
		expense.Description,
		expense.ExpenseDate.Format("2006-01-02"),
	)
}

// textContent builds the JSON content of a text message
func textContent(text string) (string, error) {
	data, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal message content: %w", err)
	}
	return string(data), nil
}
