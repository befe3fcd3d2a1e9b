package chat

import (
	"fmt"
	"sort"
	"strings"

	"ChatRelay/tools/errs"
)

type Dispatcher struct {
	handlers map[EventKind]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventKind]Handler)}
}

// Register 同一 kind 后注册的覆盖先注册的
func (d *Dispatcher) Register(h Handler) { d.handlers[h.Kind()] = h }

func (d *Dispatcher) Dispatch(ctx *ChatContext, conn *WsConn, in Inbound) error {
	h, ok := d.handlers[in.Kind]
	if !ok {
		return errs.ErrValidation.WrapMsg(fmt.Sprintf("unknown event %q", in.Name))
	}
	return h.Handle(ctx, conn, in)
}

// Verify reports inbound kinds that have no handler.
func (d *Dispatcher) Verify() error {
	var missing []string
	for _, k := range InboundKinds {
		if _, ok := d.handlers[k]; !ok {
			missing = append(missing, k.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("no handler for: %s", strings.Join(missing, ", "))
}
