package feishu

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// Notifier posts text messages to one Lark chat.
type Notifier struct {
	client *lark.Client
	chatID string
}

func NewNotifier(client *lark.Client, chatID string) *Notifier {
	return &Notifier{client: client, chatID: chatID}
}

func (n *Notifier) Notify(ctx context.Context, message string) error {
	if n.client == nil {
		return fmt.Errorf("lark client not initialized")
	}
	content, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("marshal text content: %w", err)
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(n.chatID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()
	resp, err := n.client.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("lark send: %w", err)
	}
	if !resp.Success() {
		return &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}
