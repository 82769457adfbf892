// Package channel implements the notification channels behind
// notify.Channel and the registered device directory they deliver to.
//
//   - Push publishes one JSON PushMessage per alert on a NATS subject for the
//     mobile push relay, addressed to every registered push token.
//   - SMS posts one message per registered phone number to an HTTP gateway,
//     paced by a token-bucket limiter.
//   - Email submits one message to all registered addresses via SMTP with
//     optional PLAIN auth.
//
// Breaker wraps any channel in a circuit breaker. Build assembles the
// enabled channels from config.ChannelsConfig.
//
// A channel with no registered recipients fails its send with
// ErrNoRecipients.
package channel
