// Package rabbitmq provides the broker plumbing for hare.
//
// This package includes:
//   - ConnectionRegistry: process-wide identity map of physical connections,
//     deduplicated by normalized connection signature and shared through
//     reference counting
//   - SharedConnection: a caller-owned share of a registry entry that tracks
//     the channels opened through it and releases its share exactly once
//   - MessageHandoff: single-slot rendezvous moving one delivery at a time
//     from the transport's delivery callback to a blocking consumer pull
//   - Connection/Channel interfaces: the transport boundary, implemented over
//     amqp091-go and substitutable with in-memory fakes in tests
//
// Connections are never opened twice for the same effective parameters:
// equal signatures share one physical connection, and the connection closes
// only when the last outstanding share is released.
package rabbitmq
