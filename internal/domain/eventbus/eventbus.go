package eventbus

import (
	evbus "github.com/asaskevich/EventBus"
)

// Bus is the synchronous publish/subscribe surface shared by the shell
// controller and its listeners.
type Bus interface {
	Publish(topic string, args ...interface{})
	Subscribe(topic string, fn interface{}) error
	Unsubscribe(topic string, handler interface{}) error
	HasCallback(topic string) bool
}

// New creates a synchronous event bus. Handlers run on the publisher's goroutine.
func New() Bus {
	return evbus.New()
}
