package exchange

import "errors"

// ErrOrderNotOpen is returned by CancelOrder when the order already reached
// a terminal state on the venue.
var ErrOrderNotOpen = errors.New("order is not open")

// ErrOrderUnknown is returned by QueryOrder when the venue has no record of
// the client order ID.
var ErrOrderUnknown = errors.New("order unknown to exchange")
