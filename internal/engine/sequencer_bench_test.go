package engine

import (
	"context"
	"testing"

	"nft_market/internal/domain"
)

// transfers signs n one-wei transfers from buyer with consecutive nonces.
func transfers(b *testing.B, n int) []Tx {
	b.Helper()
	w := newWallet(b)
	txs := make([]Tx, n)
	for i := range txs {
		txs[i] = w.tx(buyer, MethodTokenTransfer, map[string]any{"token": egoAddr, "to": bidder, "amount": "1"})
	}
	return txs
}

// BenchmarkSequencer_Process measures the apply path of a plain token transfer.
func BenchmarkSequencer_Process(b *testing.B) {
	s := newTestSequencer(b, domain.SystemClock{}, nil)
	txs := transfers(b, b.N)
	call, err := Decode(txs[0].Method, txs[0].Params)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := s.process(request{tx: txs[i], call: call}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSequencer_Submit measures end-to-end submission.
// Note: This benchmark includes channel overhead and signature recovery.
func BenchmarkSequencer_Submit(b *testing.B) {
	s := newTestSequencer(b, domain.SystemClock{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	txs := transfers(b, b.N)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := s.Submit(ctx, txs[i]); err != nil {
			b.Fatal(err)
		}
	}
}
