// Package notify delivers one-time codes to voters out-of-band.
//
// Delivery is fire-and-forget from the authenticator's point of view: a
// failed send is logged and reported to the caller, but the code record is
// already persisted by then.
package notify

import "context"

// Sender delivers a one-time code to a destination on a channel.
type Sender interface {
	SendCode(ctx context.Context, channel, destination, code string) error
}
