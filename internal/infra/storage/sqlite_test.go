package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"nft_market/internal/domain"
)

func setupTestDB(t *testing.T) *Storage {
	s, err := NewStorage(filepath.Join(t.TempDir(), "data", "market.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func txRecord(seq uint64, hash string, status uint8) *domain.TxRecord {
	return &domain.TxRecord{
		Seq:       seq,
		Hash:      hash,
		Sender:    "0x00000000000000000000000000000000000000a0",
		Method:    "market.bid",
		Params:    `{"amount":"10"}`,
		Timestamp: 1_700_000_000 + seq,
		Status:    status,
	}
}

func TestSaveAndLoadTxs(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	logs := []domain.LogRecord{
		{Seq: 1, Index: 0, Name: "Transfer", Data: `{"value":"10"}`},
		{Seq: 1, Index: 1, Name: "BidMade", Data: `{"amount":"10"}`},
	}
	if err := s.SaveTx(ctx, txRecord(1, "0x01", 1), logs); err != nil {
		t.Fatalf("SaveTx failed: %v", err)
	}
	failed := txRecord(2, "0x02", 0)
	failed.Error = "revert makeBidAtEnglishAuction: InvalidBidAmount"
	if err := s.SaveTx(ctx, failed, nil); err != nil {
		t.Fatalf("SaveTx failed: %v", err)
	}

	recs, err := s.LoadTxs(ctx)
	if err != nil {
		t.Fatalf("LoadTxs failed: %v", err)
	}
	if len(recs) != 2 || recs[0].Seq != 1 || recs[1].Seq != 2 {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if recs[1].Error != failed.Error || recs[1].Status != 0 {
		t.Errorf("failed tx not preserved: %+v", recs[1])
	}

	last, err := s.LastSeq(ctx)
	if err != nil || last != 2 {
		t.Errorf("LastSeq = %d, %v; want 2", last, err)
	}
}

func TestSaveTx_DuplicateSeqRollsBack(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if err := s.SaveTx(ctx, txRecord(1, "0x01", 1), nil); err != nil {
		t.Fatalf("SaveTx failed: %v", err)
	}
	dup := []domain.LogRecord{{Seq: 1, Index: 0, Name: "Transfer"}}
	if err := s.SaveTx(ctx, txRecord(1, "0x99", 1), dup); err == nil {
		t.Fatal("expected error for duplicate sequence number")
	}

	logs, err := s.ListLogs(ctx, LogFilter{})
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("logs of rejected tx were written: %+v", logs)
	}
}

func TestGetTx(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	s.SaveTx(ctx, txRecord(1, "0xabc", 1), nil)

	rec, err := s.GetTx(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetTx failed: %v", err)
	}
	if rec == nil || rec.Seq != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	missing, err := s.GetTx(ctx, "0xdef")
	if err != nil {
		t.Fatalf("GetTx on missing hash failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown hash")
	}
}

func TestListLogs(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	for seq := uint64(1); seq <= 3; seq++ {
		logs := []domain.LogRecord{
			{Seq: seq, Index: 0, Name: "Transfer"},
			{Seq: seq, Index: 1, Name: "BidMade"},
		}
		if err := s.SaveTx(ctx, txRecord(seq, fmt.Sprintf("0x%02d", seq), 1), logs); err != nil {
			t.Fatalf("SaveTx failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   int
	}{
		{"all", LogFilter{}, 6},
		{"by name", LogFilter{Name: "BidMade"}, 3},
		{"from seq", LogFilter{FromSeq: 2}, 4},
		{"limit", LogFilter{Limit: 1}, 1},
		{"no match", LogFilter{Name: "FeeWithdrawn"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := s.ListLogs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListLogs failed: %v", err)
			}
			if len(logs) != tt.want {
				t.Errorf("got %d logs, want %d", len(logs), tt.want)
			}
		})
	}

	logs, _ := s.ListLogs(ctx, LogFilter{})
	if logs[0].Seq != 1 || logs[0].Index != 0 || logs[1].Name != "BidMade" {
		t.Errorf("logs out of order: %+v", logs[:2])
	}
}
