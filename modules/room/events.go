package room

import (
	"time"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/example/sketchroom/events"
)

// busObserver publishes lifecycle transitions on the module's EventBus.
// Publishing is fire-and-forget and never on the delivery path.
type busObserver struct {
	m *Module
}

func (o busObserver) RoomCreated(code string, at time.Time) {
	bus := o.m.bus()
	if bus == nil {
		return
	}
	if err := events.RoomCreatedV1.Publish(bus, events.RoomCreatedEvent{Code: code, Timestamp: at}, nil); err != nil {
		o.m.logger.Warn("Failed to publish RoomCreated event", "code", code, "error", err)
	}
}

func (o busObserver) RoomClosed(code, reason string, at time.Time) {
	bus := o.m.bus()
	if bus == nil {
		return
	}
	event := events.RoomClosedEvent{Code: code, Reason: reason, Timestamp: at}
	if err := events.RoomClosedV1.Publish(bus, event, nil); err != nil {
		o.m.logger.Warn("Failed to publish RoomClosed event", "code", code, "error", err)
	}
}

func (o busObserver) MemberJoined(code, name string, members int, at time.Time) {
	bus := o.m.bus()
	if bus == nil {
		return
	}
	event := events.MemberJoinedEvent{Code: code, Name: name, Members: members, Timestamp: at}
	if err := events.MemberJoinedV1.Publish(bus, event, nil); err != nil {
		o.m.logger.Warn("Failed to publish MemberJoined event", "code", code, "error", err)
	}
}

func (o busObserver) MemberLeft(code, name string, members int, at time.Time) {
	bus := o.m.bus()
	if bus == nil {
		return
	}
	event := events.MemberLeftEvent{Code: code, Name: name, Members: members, Timestamp: at}
	if err := events.MemberLeftV1.Publish(bus, event, nil); err != nil {
		o.m.logger.Warn("Failed to publish MemberLeft event", "code", code, "error", err)
	}
}

func (o busObserver) MessagePosted(msg domain.Message) {
	bus := o.m.bus()
	if bus == nil {
		return
	}
	event := events.MessagePostedEvent{
		MessageID: msg.ID,
		Code:      msg.RoomCode,
		Seq:       msg.Seq,
		Sender:    msg.Sender,
		Length:    len(msg.Content),
		Timestamp: msg.Timestamp,
	}
	if err := events.MessagePostedV1.Publish(bus, event, nil); err != nil {
		o.m.logger.Warn("Failed to publish MessagePosted event", "code", msg.RoomCode, "error", err)
	}
}
