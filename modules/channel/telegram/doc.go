// Package telegram is the channel.telegram module: the chat bot itself.
//
// Updates arrive by long polling or through the gateway's webhook
// dispatcher and are queued to a worker pool that keeps each chat in
// order. The bot answers:
//
//   - text prompts in private chats, and in groups when addressed by
//     mention, reply or /chat
//   - voice notes and video messages, transcribed through ffmpeg and the
//     provider's speech endpoint before being prompted
//   - inline queries, answered with a placeholder edited once the reply
//     is complete
//   - /image, /resend, /reset, /stats and /help, plus the onboarding and
//     rate-the-dialog conversations
//
// Replies stream into a single message edited on an interval, and every
// billable request goes through the usage recorder, which enforces the
// per-user and guest-pool budgets.
//
// The Bot API is called with net/http and encoding/json; no Telegram
// client library is used.
package telegram
