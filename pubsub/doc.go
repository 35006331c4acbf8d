// Package pubsub is a client for the Twitch PubSub websocket. It owns the
// socket, the PING/PONG keepalive and reconnection, and matches LISTEN and
// UNLISTEN requests to their RESPONSE frames by nonce.
//
// Handlers run on the read goroutine. They must not call Subscribe,
// Unsubscribe or Close on the same client.
package pubsub
