package wireproto

import (
	"encoding/json"
	"fmt"
)

// FrameKind tags the payload carried by a session Frame so a single
// WebSocket connection can multiplex the handful of message types each
// session RPC needs (spec.md §6).
type FrameKind string

const (
	FrameOrder         FrameKind = "order"
	FrameStatus        FrameKind = "status"
	FrameBrokerdOrder  FrameKind = "brokerd_order"
	FrameBrokerdCancel FrameKind = "brokerd_cancel"
	FrameBrokerdEvent  FrameKind = "brokerd_event"
	FramePosition      FrameKind = "position"
	FrameQuote         FrameKind = "quote"
	FrameFeedInit      FrameKind = "feed_init"
)

// Frame is the outer envelope written to the wire. Exactly one of the
// payload fields is populated, selected by Kind.
type Frame struct {
	Kind FrameKind `json:"kind"`

	Order         *Order          `json:"order,omitempty"`
	Status        *Status         `json:"status,omitempty"`
	BrokerdOrder  *BrokerdOrder   `json:"brokerdOrder,omitempty"`
	BrokerdCancel *BrokerdCancel  `json:"brokerdCancel,omitempty"`
	BrokerdEvent  *BrokerdEvent   `json:"brokerdEvent,omitempty"`
	Position      *BrokerdPosition `json:"position,omitempty"`
	Quote         *TopicQuote     `json:"quote,omitempty"`
	FeedInit      *FeedInitMsg    `json:"feedInit,omitempty"`
}

// TopicQuote carries a quote keyed by symbol topic, matching the feed
// session's "{topic: quote}" contract (spec.md §4.2).
type TopicQuote struct {
	Topic string `json:"topic"`
	Quote Quote  `json:"data"`
}

// Encode marshals a Frame to wire bytes.
func Encode(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame %s: %w", f.Kind, err)
	}
	return b, nil
}

// Decode unmarshals wire bytes into a Frame.
func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func OrderFrame(o Order) Frame                   { return Frame{Kind: FrameOrder, Order: &o} }
func StatusFrame(s Status) Frame                 { return Frame{Kind: FrameStatus, Status: &s} }
func BrokerdOrderFrame(o BrokerdOrder) Frame     { return Frame{Kind: FrameBrokerdOrder, BrokerdOrder: &o} }
func BrokerdCancelFrame(c BrokerdCancel) Frame   { return Frame{Kind: FrameBrokerdCancel, BrokerdCancel: &c} }
func BrokerdEventFrame(e BrokerdEvent) Frame     { return Frame{Kind: FrameBrokerdEvent, BrokerdEvent: &e} }
func PositionFrame(p BrokerdPosition) Frame      { return Frame{Kind: FramePosition, Position: &p} }
func QuoteFrame(topic string, q Quote) Frame {
	return Frame{Kind: FrameQuote, Quote: &TopicQuote{Topic: topic, Quote: q}}
}
func FeedInitFrame(m FeedInitMsg) Frame { return Frame{Kind: FrameFeedInit, FeedInit: &m} }
