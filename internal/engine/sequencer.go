package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/execution"
	"nft_market/internal/infra"
	"nft_market/internal/market"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// WAL persists sequenced transactions before their receipts are released.
type WAL interface {
	SaveTx(ctx context.Context, rec *domain.TxRecord, logs []domain.LogRecord) error
}

// Options configures a Sequencer. Zero values select the defaults.
type Options struct {
	InboxSize int
	Store     WAL // nil disables the write-ahead log
	Clock     domain.Clock
	Metrics   *infra.Metrics
	Logger    *slog.Logger
	// OnReceipt is called from the sequencer goroutine after each transaction.
	OnReceipt func(*event.Receipt)
	// VerifyInvariants re-checks ledger and escrow invariants after every commit.
	VerifyInvariants bool
	DumpPath         string
}

type request struct {
	tx    Tx
	call  Call
	reply chan result
}

type result struct {
	receipt *event.Receipt
	err     error
}

// Sequencer is the single writer of marketplace state. Transactions are
// applied one at a time in arrival order, each atomically.
type Sequencer struct {
	inbox   chan request
	done    chan struct{}
	env     *Env
	nextSeq uint64
	lastTs  uint64
	nonces  map[common.Address]uint64

	store     WAL
	clock     domain.Clock
	metrics   *infra.Metrics
	logger    *slog.Logger
	onReceipt func(*event.Receipt)
	verify    bool
	dumpPath  string

	mu sync.RWMutex // held for writing while a transaction applies
}

// NewSequencer creates a sequencer over env. Sequence numbers start at 1.
func NewSequencer(env *Env, opts Options) *Sequencer {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1024
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = infra.GlobalMetrics
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DumpPath == "" {
		opts.DumpPath = "panic_dump.json"
	}
	return &Sequencer{
		inbox:     make(chan request, opts.InboxSize),
		done:      make(chan struct{}),
		env:       env,
		nextSeq:   1,
		nonces:    make(map[common.Address]uint64),
		store:     opts.Store,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With(slog.String("module", "sequencer")),
		onReceipt: opts.OnReceipt,
		verify:    opts.VerifyInvariants,
		dumpPath:  opts.DumpPath,
	}
}

// Submit decodes tx, checks its signature, queues it and waits for its
// receipt. Malformed, unsigned or out-of-order calls are rejected without
// consuming a sequence number. A reverted call is not an error: its receipt
// carries status 0 and the reason.
func (s *Sequencer) Submit(ctx context.Context, tx Tx) (*event.Receipt, error) {
	if tx.From == domain.ZeroAddress {
		return nil, ErrMissingSender
	}
	call, err := Decode(tx.Method, tx.Params)
	if err != nil {
		return nil, err
	}
	if _, err := Sender(s.env.Market.Address(), tx); err != nil {
		return nil, err
	}
	req := request{tx: tx, call: call, reply: make(chan result, 1)}

	select {
	case s.inbox <- req:
	case <-s.done:
		return nil, ErrSequencerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.receipt, res.err
	case <-s.done:
		return nil, ErrSequencerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run starts the main loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	s.logger.Info("Sequencer started", slog.Uint64("next_seq", s.nextSeq))
	defer close(s.done)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sequencer stopping...", slog.Uint64("next_seq", s.nextSeq))
			return
		case req := <-s.inbox:
			r, err := s.process(req)
			req.reply <- result{receipt: r, err: err}
		}
	}
}

func (s *Sequencer) process(req request) (*event.Receipt, error) {
	if want := s.nonces[req.tx.From]; req.tx.Nonce != want {
		return nil, fmt.Errorf("%w: %s sent %d, next is %d", ErrNonceMismatch, req.tx.From.Hex(), req.tx.Nonce, want)
	}
	start := time.Now()

	s.mu.Lock()
	ts := uint64(s.clock.Now().Unix())
	if ts < s.lastTs {
		ts = s.lastTs
	}
	receipt := s.apply(s.nextSeq, ts, req.tx, req.call)
	s.mu.Unlock()

	// WAL-first: nothing leaves the sequencer before it is durable.
	if s.store != nil {
		rec, logs, err := records(req.tx, receipt)
		if err == nil {
			err = s.store.SaveTx(context.Background(), rec, logs)
		}
		if err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: seq %d: %v", receipt.Seq, err))
		}
	}

	s.mu.Lock()
	s.nextSeq++
	s.lastTs = ts
	s.nonces[req.tx.From]++
	s.mu.Unlock()

	s.metrics.RecordTx(receipt.Succeeded(), time.Since(start).Nanoseconds())
	s.metrics.RecordSettlements(settlements(receipt))

	attrs := []any{
		slog.Uint64("seq", receipt.Seq),
		slog.String("method", receipt.Method),
		slog.String("from", receipt.From.Hex()),
		slog.Int("logs", len(receipt.Logs)),
	}
	if receipt.Succeeded() {
		s.logger.Info("tx committed", attrs...)
	} else {
		s.logger.Warn("tx reverted", append(attrs, slog.String("error", receipt.Error))...)
	}

	if s.onReceipt != nil {
		s.onReceipt(receipt)
	}
	return receipt, nil
}

// apply executes call as transaction seq at block time ts. State is rolled
// back if the call fails. The caller holds mu.
func (s *Sequencer) apply(seq, ts uint64, tx Tx, call Call) *event.Receipt {
	receipt := &event.Receipt{
		Seq:       seq,
		Hash:      TxHash(seq, ts, tx),
		From:      tx.From,
		Method:    tx.Method,
		Timestamp: ts,
		Status:    event.ReceiptStatusSuccessful,
	}

	j := s.env.Journal
	snap := j.Snapshot()
	if err := call.Apply(s.env, domain.TxContext{Sender: tx.From, Now: ts}); err != nil {
		j.RevertToSnapshot(snap)
		receipt.Status = event.ReceiptStatusFailed
		receipt.Error = err.Error()
		return receipt
	}
	receipt.Logs = j.Commit()
	for _, l := range receipt.Logs {
		l.Stamp(seq, ts)
	}

	if s.verify {
		if err := s.env.Market.VerifyInvariants(); err != nil {
			panic(fmt.Sprintf("MARKET_INVARIANT_VIOLATION: seq %d: %v", seq, err))
		}
		s.env.Chain.VerifyInvariants()
	}
	return receipt
}

// Replay re-applies logged transactions without writing them back. It must
// run before Run starts. Any difference between a replayed outcome and the
// logged one halts the node.
func (s *Sequencer) Replay(records []domain.TxRecord) {
	for _, rec := range records {
		if rec.Seq != s.nextSeq {
			panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", s.nextSeq, rec.Seq))
		}
		sig, err := hexutil.Decode(rec.Signature)
		if err != nil {
			panic(fmt.Sprintf("REPLAY_DECODE_FAILURE: seq %d: signature: %v", rec.Seq, err))
		}
		tx := Tx{
			From:      common.HexToAddress(rec.Sender),
			Nonce:     rec.Nonce,
			Method:    rec.Method,
			Params:    json.RawMessage(rec.Params),
			Signature: sig,
		}
		call, err := Decode(tx.Method, tx.Params)
		if err != nil {
			panic(fmt.Sprintf("REPLAY_DECODE_FAILURE: seq %d: %v", rec.Seq, err))
		}
		if _, err := Sender(s.env.Market.Address(), tx); err != nil {
			panic(fmt.Sprintf("REPLAY_SIGNATURE_INVALID: seq %d: %v", rec.Seq, err))
		}
		if want := s.nonces[tx.From]; tx.Nonce != want {
			panic(fmt.Sprintf("REPLAY_DIVERGENCE: seq %d: nonce %d, expected %d", rec.Seq, tx.Nonce, want))
		}

		s.mu.Lock()
		receipt := s.apply(rec.Seq, rec.Timestamp, tx, call)
		s.nonces[tx.From]++
		s.mu.Unlock()

		if receipt.Hash.Hex() != rec.Hash || receipt.Status != rec.Status || receipt.Error != rec.Error {
			panic(fmt.Sprintf("REPLAY_DIVERGENCE: seq %d: logged status=%d error=%q, replayed status=%d error=%q",
				rec.Seq, rec.Status, rec.Error, receipt.Status, receipt.Error))
		}
		s.nextSeq++
		s.lastTs = rec.Timestamp
	}
	if len(records) > 0 {
		s.logger.Info("Replay completed", slog.Int("txs", len(records)), slog.Uint64("next_seq", s.nextSeq))
	}
}

// View runs fn with shared access to the state (external read).
func (s *Sequencer) View(fn func(m *market.Market, c *execution.Chain)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.env.Market, s.env.Chain)
}

// Nonce returns the nonce the next transaction from account must carry.
func (s *Sequencer) Nonce(account common.Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonces[account]
}

// NextSeq returns the sequence number the next transaction will receive.
func (s *Sequencer) NextSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq
}

// TxHash identifies a sequenced transaction.
func TxHash(seq, ts uint64, tx Tx) common.Hash {
	var head [16]byte
	binary.BigEndian.PutUint64(head[:8], seq)
	binary.BigEndian.PutUint64(head[8:], ts)
	return crypto.Keccak256Hash(head[:], tx.From.Bytes(), []byte(tx.Method), compact(tx.Params))
}

func compact(params json.RawMessage) []byte {
	if len(params) == 0 {
		return []byte("{}")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, params); err != nil {
		return params
	}
	return buf.Bytes()
}

func records(tx Tx, r *event.Receipt) (*domain.TxRecord, []domain.LogRecord, error) {
	rec := &domain.TxRecord{
		Seq:       r.Seq,
		Hash:      r.Hash.Hex(),
		Sender:    r.From.Hex(),
		Nonce:     tx.Nonce,
		Method:    r.Method,
		Params:    string(compact(tx.Params)),
		Signature: hexutil.Encode(tx.Signature),
		Timestamp: r.Timestamp,
		Status:    r.Status,
		Error:     r.Error,
	}
	logs := make([]domain.LogRecord, 0, len(r.Logs))
	for i, l := range r.Logs {
		data, err := json.Marshal(l)
		if err != nil {
			return nil, nil, err
		}
		logs = append(logs, domain.LogRecord{
			Seq:   r.Seq,
			Index: i,
			Name:  string(l.GetType()),
			Data:  string(data),
		})
	}
	return rec, logs, nil
}

// settlements counts the sales paid out by r.
func settlements(r *event.Receipt) int {
	n := len(r.Filter(event.TypeFixedPriceMarketItemBought))
	for _, l := range r.Filter(event.TypeAuctionFinished) {
		if f, ok := l.(*event.AuctionFinishedEvent); ok && !f.Price.IsZero() {
			n++
		}
	}
	return n
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	s.logger.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq uint64                    `json:"next_seq"`
		LastTs  uint64                    `json:"last_ts"`
		Nonces  map[common.Address]uint64 `json:"nonces"`
		Market  market.Snapshot           `json:"market"`
		Chain   execution.ChainSnapshot   `json:"chain"`
	}{
		NextSeq: s.nextSeq,
		LastTs:  s.lastTs,
		Nonces:  s.nonces,
		Market:  s.env.Market.Snapshot(),
		Chain:   s.env.Chain.Snapshot(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
