/*
Package event is the in-process pub/sub bus connecting the core's
components: the session layer publishes, the SSE broadcaster and other
observers subscribe, and neither knows about the other.

# Design

Dispatch is a direct function call per subscriber, so payloads keep
their Go types; watermill's gochannel sits underneath as the transport,
available through PubSub for middleware or a later move to a
distributed broker.

Two delivery modes exist. Publish is fire-and-forget: every subscriber
runs on its own goroutine and can never stall the publisher. PublishSync
runs subscribers inline on the caller's goroutine and returns when all
have finished; use it when downstream state must be visible before the
publisher proceeds (SSE frames mirroring session mutations, for
example).

# Usage

	unsubscribe := event.Subscribe(event.SessionCreated, func(e event.Event) {
		data := e.Data.(event.SessionCreatedData)
		log.Info().Str("id", data.Info.ID).Msg("session created")
	})
	defer unsubscribe()

	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: session},
	})

SubscribeAll registers a catch-all; the SSE broadcaster uses it to
mirror every state change to connected clients.

# Subscriber rules

A PublishSync subscriber runs on the publisher's goroutine, so it must
return quickly, must not publish re-entrantly, and must not take locks
the publisher may hold. Subscribers that feed channels should use a
non-blocking send and drop on overflow:

	event.SubscribeAll(func(e event.Event) {
	    select {
	    case eventChan <- e:
	    default:
	        log.Warn().Str("type", string(e.Type)).Msg("event dropped, channel full")
	    }
	})

# Testing

NewBus creates an isolated instance; Reset tears down and replaces the
global bus between tests. Everything here is safe for concurrent use.
*/
package event
