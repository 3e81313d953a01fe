package tele

// Tele transport contract:
// - Post makes single delivery attempt, bounded by transport timeouts
// - success means receiver answered HTTP 200 or 201
// - no retries, no queue; caller decides when to send again
// - assume worst link quality: bytes lost, delayed or corrupted
type Transporter interface {
	Post(url string, body []byte) error
}
