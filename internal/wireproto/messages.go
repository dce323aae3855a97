// Package wireproto defines the message vocabulary carried over the three
// session RPCs: client<->EMS, EMS<->broker feed, EMS<->broker trades.
package wireproto

// Action is a client order intent's requested action.
type Action string

const (
	ActionBuy    Action = "buy"
	ActionSell   Action = "sell"
	ActionAlert  Action = "alert"
	ActionCancel Action = "cancel"
)

// ExecMode selects how an order is handled once submitted.
type ExecMode string

const (
	ExecLive  ExecMode = "live"
	ExecDark  ExecMode = "dark"
	ExecPaper ExecMode = "paper"
)

// Order is a client order intent, immutable once sent (spec.md §3).
type Order struct {
	OID      string   `json:"oid"`
	Symbol   string   `json:"symbol"`
	Brokers  []string `json:"brokers"`
	Action   Action   `json:"action"`
	Price    float64  `json:"price"`
	Size     float64  `json:"size"`
	ExecMode ExecMode `json:"execMode"`
}

// Resp enumerates the client-visible status tags (spec.md §7).
type Resp string

const (
	RespAlertSubmitted  Resp = "alert_submitted"
	RespAlertTriggered  Resp = "alert_triggered"
	RespDarkSubmitted   Resp = "dark_submitted"
	RespDarkTriggered   Resp = "dark_triggered"
	RespDarkCancelled   Resp = "dark_cancelled"
	RespBrokerSubmitted Resp = "broker_submitted"
	RespBrokerCancelled Resp = "broker_cancelled"
	RespBrokerExecuted  Resp = "broker_executed"
	RespBrokerFilled    Resp = "broker_filled"
	RespError           Resp = "error"
)

// Status is an EMS->client status update (spec.md §3). Emitted repeatedly
// across an order's lifetime.
type Status struct {
	OID           string         `json:"oid"`
	Symbol        string         `json:"symbol"`
	Resp          Resp           `json:"resp"`
	TimeNS        int64          `json:"timeNs"`
	TriggerPrice  float64        `json:"triggerPrice,omitempty"`
	BrokerReqID   string         `json:"brokerReqid,omitempty"`
	BrokerDetails map[string]any `json:"brokerDetails,omitempty"`
}

// BrokerdOrder is an EMS->broker order submission (spec.md §3).
type BrokerdOrder struct {
	OID    string  `json:"oid"`
	ReqID  string  `json:"reqid,omitempty"`
	TimeNS int64   `json:"timeNs"`
	Symbol string  `json:"symbol"`
	Action Action  `json:"action"`
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
}

// BrokerdCancel is an EMS->broker cancel request (spec.md §3).
type BrokerdCancel struct {
	OID    string `json:"oid"`
	ReqID  string `json:"reqid,omitempty"`
	TimeNS int64  `json:"timeNs"`
}

// BrokerStatus is the broker-native order state carried by a status event.
type BrokerStatus string

const (
	BrokerPresubmitted BrokerStatus = "presubmitted"
	BrokerSubmitted    BrokerStatus = "submitted"
	BrokerCancelled    BrokerStatus = "cancelled"
	BrokerFilled       BrokerStatus = "filled"
	BrokerInactive     BrokerStatus = "inactive"
)

// EventKind discriminates the broker->EMS tagged union (spec.md §3).
type EventKind string

const (
	EventAck      EventKind = "ack"
	EventStatus   EventKind = "status"
	EventFill     EventKind = "fill"
	EventError    EventKind = "error"
	EventPosition EventKind = "position"
)

// BrokerdEvent is a broker->EMS event. Every event carries ReqID (and
// usually OID); the fields relevant to Kind are populated, others left zero.
type BrokerdEvent struct {
	Kind   EventKind `json:"kind"`
	ReqID  string    `json:"reqid"`
	OID    string    `json:"oid,omitempty"`
	TimeNS int64     `json:"timeNs"`

	// status
	BrokerStatus BrokerStatus `json:"brokerStatus,omitempty"`
	Filled       float64      `json:"filled,omitempty"`
	Remaining    float64      `json:"remaining,omitempty"`
	Reason       string       `json:"reason,omitempty"`

	// fill
	ExecID     string  `json:"execId,omitempty"`
	BrokerTime int64   `json:"brokerTime,omitempty"`
	FillSize   float64 `json:"fillSize,omitempty"`
	FillPrice  float64 `json:"fillPrice,omitempty"`
	FillAction Action  `json:"fillAction,omitempty"`

	// error
	ErrorMsg string `json:"error,omitempty"`
	External bool   `json:"external,omitempty"`

	// position
	Position *BrokerdPosition `json:"position,omitempty"`

	// opaque broker-native payload, forwarded as Status.BrokerDetails
	Details map[string]any `json:"details,omitempty"`
}

// BrokerdPosition is a broker->EMS position report (spec.md §3).
type BrokerdPosition struct {
	Broker   string  `json:"broker"`
	Account  string  `json:"account"`
	Symbol   string  `json:"symbol"`
	Size     float64 `json:"size"`
	AvgPrice float64 `json:"avgPrice"`
	Currency string  `json:"currency"`
}

// TickType enumerates the element kinds of a Quote's Ticks slice.
type TickType string

const (
	TickTrade  TickType = "trade"
	TickUTrade TickType = "utrade"
	TickBid    TickType = "bid"
	TickAsk    TickType = "ask"
	TickBSize  TickType = "bsize"
	TickASize  TickType = "asize"
	TickLast   TickType = "last"
)

// Tick is one element of Quote.Ticks (GLOSSARY).
type Tick struct {
	Type  TickType `json:"type"`
	Price float64  `json:"price"`
	Size  float64  `json:"size,omitempty"`
}

// Quote is a normalized market-data update (spec.md §4.3).
type Quote struct {
	Symbol    string  `json:"symbol"`
	BrokerTS  float64 `json:"brokerTs"`
	BrokerdTS float64 `json:"brokerdTs"`
	Ticks     []Tick  `json:"ticks"`
}

// SymbolInfo describes a symbol's trading parameters, carried in a feed's
// init message (spec.md §4.2).
type SymbolInfo struct {
	Symbol        string  `json:"symbol"`
	PriceTickSize float64 `json:"priceTickSize"`
}

// FeedInitMsg is the per-symbol payload of a feed session's init message.
type FeedInitMsg struct {
	ShmToken   RingToken  `json:"shmToken"`
	SymbolInfo SymbolInfo `json:"symbolInfo"`
	SampleRate float64    `json:"sampleRate"`
}

// RingToken is the serializable descriptor for attaching to an OHLC ring
// (spec.md §3 ShmArray, §6 "On-wire OHLC schema").
type RingToken struct {
	Name       string `json:"name"`
	DTypeDescr string `json:"dtypeDescr"`
	Size       int    `json:"size"`
}
