package event

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

const (
	ReceiptStatusFailed     uint8 = 0
	ReceiptStatusSuccessful uint8 = 1
)

// Receipt is the outcome of one sequenced transaction. A failed receipt
// carries the revert reason and no logs.
type Receipt struct {
	Seq       uint64         `json:"seq"`
	Hash      common.Hash    `json:"hash"`
	From      common.Address `json:"from"`
	Method    string         `json:"method"`
	Timestamp uint64         `json:"timestamp"`
	Status    uint8          `json:"status"`
	Error     string         `json:"error,omitempty"`
	Logs      []Event        `json:"-"`
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccessful
}

// Envelope is the wire form of a log: its type name plus its fields.
type Envelope struct {
	Type Type  `json:"type"`
	Data Event `json:"data"`
}

// Wrap builds the wire form of ev.
func Wrap(ev Event) Envelope {
	return Envelope{Type: ev.GetType(), Data: ev}
}

// Filter returns the logs of type t, in emission order.
func (r *Receipt) Filter(t Type) []Event {
	var out []Event
	for _, ev := range r.Logs {
		if ev.GetType() == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Receipt) MarshalJSON() ([]byte, error) {
	type plain Receipt
	logs := make([]Envelope, 0, len(r.Logs))
	for _, ev := range r.Logs {
		logs = append(logs, Wrap(ev))
	}
	return json.Marshal(struct {
		*plain
		Logs []Envelope `json:"logs"`
	}{plain: (*plain)(r), Logs: logs})
}
