package domain

import (
	"time"
)

// TxRecord is one sequenced transaction in the write-ahead log.
// Params holds the JSON arguments of the call.
type TxRecord struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	Hash      string    `gorm:"uniqueIndex;size:66" json:"hash"`
	Sender    string    `gorm:"index;size:42" json:"from"`
	Nonce     uint64    `json:"nonce"`
	Method    string    `gorm:"index" json:"method"`
	Params    string    `json:"params"`
	Signature string    `gorm:"size:132" json:"signature"`
	Timestamp uint64    `json:"timestamp"`
	Status    uint8     `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LogRecord is one event emitted by a committed transaction.
type LogRecord struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Seq       uint64    `gorm:"index" json:"seq"`
	Index     int       `json:"index"`
	Name      string    `gorm:"index" json:"name"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}
