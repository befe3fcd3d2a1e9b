package natsx

import (
	"context"

	"github.com/google/uuid"
)

const MsgIDHeader = "Nats-Msg-Id"

// PublishOnce 带 Nats-Msg-Id 的发布，msgID 为空则自动生成
func (p *NatsxProducer) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	if hdr == nil {
		hdr = map[string]string{}
	}
	if msgID == "" {
		msgID = uuid.NewString()
	}
	hdr[MsgIDHeader] = msgID
	return p.Publish(ctx, biz, data, hdr)
}
