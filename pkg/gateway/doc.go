// Package gateway defines the public contracts of the WebSocket gateway.
//
// The gateway multiplexes many long-lived client connections onto a single
// shared broker pub/sub channel and routes messages between them by
// hierarchical topic. Two collaborators are defined here as interfaces so
// that implementations stay swappable:
//
//   - Transport: one client's socket session. The gateway drives the
//     handshake, frame writes and the close sequence through it; framing
//     and handshake mechanics belong to the implementation.
//   - Broker: the shared pub/sub channel. Connection setup, authentication
//     and retry policy belong to the implementation; the gateway only
//     publishes, subscribes and drains messages.
//
// Implementations live under internal/: internal/wstransport adapts a
// gorilla/websocket connection to Transport, and internal/broker provides
// Redis and in-memory Brokers.
//
// Delivery between gateway instances is best effort, at most once. A
// message published by one instance reaches another instance's clients
// only through the broker channel; no instance knows about another's
// connections.
package gateway
