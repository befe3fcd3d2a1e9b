package bus

import (
	"context"

	"ChatRelay/service/natsx"

	"github.com/pkg/errors"
)

// NatsSubjectPrefix prefixes every core subject: chat.message, chat.typing, ...
const NatsSubjectPrefix = "chat."

type natsTransport struct {
	mgr *natsx.NatsManager
}

// NewNatsTransport connects to the given servers. Subjects are broadcast, so
// every relay receives every envelope.
func NewNatsTransport(servers []string, relayID string) (Transport, error) {
	mgr, err := natsx.NewNatsManager(natsx.NatsxConfig{
		Servers: servers,
		Name:    "chat-relay-" + relayID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &natsTransport{mgr: mgr}, nil
}

func (n *natsTransport) Start(_ context.Context, topics []Topic, deliver DeliverFunc) error {
	for _, t := range topics {
		topic := t
		if err := n.mgr.RegisterRoute(natsx.NatsxRoute{Biz: string(topic), Subject: NatsSubjectPrefix + string(topic)}); err != nil {
			return err
		}
		err := n.mgr.Subscribe(string(topic), func(_ context.Context, msg natsx.NatsxMessage) error {
			deliver(topic, msg.Data)
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "nats subscribe %s", topic)
		}
	}
	return n.mgr.Flush()
}

func (n *natsTransport) Publish(ctx context.Context, msg Outbound) error {
	return n.mgr.PublishOnce(ctx, string(msg.Topic), msg.Data, nil, msg.ID)
}

func (n *natsTransport) Close() error {
	return n.mgr.Close()
}
