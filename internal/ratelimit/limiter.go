package ratelimit

// MessageLimiter budgets inbound messages for one signaling session. Bursts of
// up to one second's worth are allowed, which covers the flurry of ICE
// candidates that follows an offer.
type MessageLimiter struct {
	messages *TokenBucket
}

// NewMessageLimiter allows perSecond messages per second. perSecond <= 0
// disables limiting.
func NewMessageLimiter(clock Clock, perSecond int) *MessageLimiter {
	if perSecond <= 0 {
		return &MessageLimiter{}
	}
	return &MessageLimiter{
		messages: NewTokenBucket(clock, int64(perSecond), int64(perSecond)),
	}
}

func (l *MessageLimiter) Allow() bool {
	if l == nil || l.messages == nil {
		return true
	}
	return l.messages.Allow(1)
}
