// Package whatsapp talks to the WhatsApp Cloud API: it sends text replies,
// marks inbound messages as read and decodes webhook payloads.
//
// Long replies are split into chunks of at most WordsLimit characters,
// breaking at the last newline inside the window when there is one.
package whatsapp
