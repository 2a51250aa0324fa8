// events.go converts whatsmeow events into channel messages.
package whatsapp

import (
	"time"

	"whatshound/pkg/whatshound/channels"

	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)
	case *events.Connected:
		w.connected.Store(true)
		w.logger.Info("connection established")
	case *events.Disconnected:
		w.connected.Store(false)
		w.logger.Warn("connection lost")
	case *events.LoggedOut:
		w.connected.Store(false)
		w.logger.Warn("logged out, session invalidated", "reason", evt.Reason)
	case *events.StreamReplaced:
		w.connected.Store(false)
		w.logger.Warn("stream replaced by another session")
	}
}

func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	w.lastMsg.Store(time.Now())

	if evt.Info.IsFromMe {
		return
	}
	if evt.Info.Chat.Server == "broadcast" {
		return
	}
	if evt.Info.IsGroup && !w.cfg.RespondToGroups {
		return
	}

	content := extractText(evt.Message)
	if content == "" {
		return
	}

	w.emitMessage(&channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      evt.Info.Sender.String(),
		FromName:  evt.Info.PushName,
		Content:   content,
		Timestamp: evt.Info.Timestamp,
	})
}

// extractText pulls the text out of a WhatsApp message. Non-text messages
// yield "" and are dropped by the caller.
func extractText(waMsg *waProto.Message) string {
	if waMsg == nil {
		return ""
	}
	if waMsg.Conversation != nil {
		return waMsg.GetConversation()
	}
	if ext := waMsg.ExtendedTextMessage; ext != nil {
		return ext.GetText()
	}
	return ""
}

// emitMessage delivers to the Receive channel without blocking the event
// loop; a full buffer drops the message.
func (w *WhatsApp) emitMessage(msg *channels.IncomingMessage) {
	if w.messagesClosed.Load() {
		return
	}
	select {
	case w.messages <- msg:
	default:
		w.logger.Warn("message buffer full, dropping", "from", msg.From)
	}
}
