package service

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"testing"

	"payouts/internal/domain"
	"payouts/internal/port"
	"payouts/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
	return nil
}

func (r *recordingNotifier) count(e domain.NotificationEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, n := range r.events {
		if n.Event == e {
			c++
		}
	}
	return c
}

func newFlow(t *testing.T, balances map[string]int64) (port.WithdrawalService, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.NewStore()
	for seller, amount := range balances {
		require.NoError(t, store.OpenAccount(context.Background(), seller, amount))
	}
	n := &recordingNotifier{}
	return NewWithdrawalService(store, store, n, testConfig(), nil), store, n
}

func available(t *testing.T, store *memory.Store, sellerID string) int64 {
	t.Helper()
	acct, err := store.GetAccount(context.Background(), sellerID)
	require.NoError(t, err)
	return acct.AvailableBalance
}

func TestFlow_MinimumBankTransfer(t *testing.T) {
	svc, store, n := newFlow(t, map[string]int64{"seller-1": 5000})

	w, err := svc.CreateWithdrawal(context.Background(), bankTransfer("seller-1", 100))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, w.Status)
	assert.Equal(t, int64(4900), available(t, store, "seller-1"))
	assert.Regexp(t, `^WD\d{13}[0-9A-Z]{4}$`, w.TransactionID)
	assert.Equal(t, 1, n.count(domain.EventSubmitted))

	other, err := svc.CreateWithdrawal(context.Background(), bankTransfer("seller-1", 100))
	require.NoError(t, err)
	assert.NotEqual(t, w.TransactionID, other.TransactionID)
}

func TestFlow_BelowMinimumLeavesBalance(t *testing.T) {
	svc, store, n := newFlow(t, map[string]int64{"seller-1": 5000})

	_, err := svc.CreateWithdrawal(context.Background(), bankTransfer("seller-1", 50))

	assert.ErrorIs(t, err, domain.ErrBelowMinimum)
	assert.Equal(t, int64(5000), available(t, store, "seller-1"))
	list, err := svc.ListSellerWithdrawals(context.Background(), "seller-1")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, n.count(domain.EventSubmitted))
}

func TestFlow_UnknownSeller(t *testing.T) {
	svc, _, _ := newFlow(t, nil)

	_, err := svc.CreateWithdrawal(context.Background(), bankTransfer("ghost", 500))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

// flakyStore fails Create with a dropped connection, after or instead of
// writing.
type flakyStore struct {
	*memory.Store
	commit bool
}

func (f *flakyStore) Create(ctx context.Context, w *domain.Withdrawal, entry domain.LedgerEntry) error {
	if f.commit {
		if err := f.Store.Create(ctx, w, entry); err != nil {
			return err
		}
	}
	return &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}
}

func TestFlow_CreateFailureNeverDoubleCounts(t *testing.T) {
	for _, commit := range []bool{true, false} {
		store := memory.NewStore()
		require.NoError(t, store.OpenAccount(context.Background(), "seller-1", 1000))
		svc := NewWithdrawalService(&flakyStore{Store: store, commit: commit}, store, nil, testConfig(), nil)

		w, err := svc.CreateWithdrawal(context.Background(), bankTransfer("seller-1", 600))

		list, lerr := store.List(context.Background(), domain.ListFilter{Status: domain.StatusProcessing})
		require.NoError(t, lerr)
		acct, aerr := store.GetAccount(context.Background(), "seller-1")
		require.NoError(t, aerr)

		var processing int64
		for _, p := range list {
			processing += p.Amount
		}
		assert.Equal(t, int64(1000), acct.AvailableBalance+processing, "commit=%v", commit)
		assert.Equal(t, processing, acct.Reserved(), "commit=%v", commit)

		if commit {
			require.NoError(t, err)
			assert.Equal(t, int64(400), acct.AvailableBalance)
			assert.Equal(t, list[0].ID, w.ID)
		} else {
			assert.Error(t, err)
			assert.Empty(t, list)
		}
	}
}

func TestFlow_RejectRestoresBalance(t *testing.T) {
	svc, store, n := newFlow(t, map[string]int64{"seller-1": 1200})

	w, err := svc.CreateWithdrawal(context.Background(), bankTransfer("seller-1", 500))
	require.NoError(t, err)
	assert.Equal(t, int64(700), available(t, store, "seller-1"))

	got, err := svc.Finalize(context.Background(), domain.FinalizeReq{
		WithdrawalID: w.ID, AdminID: "admin-1", Decision: domain.StatusRejected, Note: "account closed",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, got.Status)
	assert.Equal(t, "admin-1", got.ProcessedBy)
	assert.NotNil(t, got.ProcessedAt)
	assert.Equal(t, int64(1200), available(t, store, "seller-1"))
	assert.Equal(t, 1, n.count(domain.EventRejected))

	acct, err := svc.Balance(context.Background(), "seller-1")
	require.NoError(t, err)
	require.Len(t, acct.Transactions, 1)
	assert.Equal(t, domain.StatusRejected, acct.Transactions[0].Status)
}

func TestFlow_FinalizeTwice(t *testing.T) {
	for _, decision := range []domain.WithdrawalStatus{domain.StatusSucceed, domain.StatusRejected} {
		t.Run(string(decision), func(t *testing.T) {
			svc, store, _ := newFlow(t, map[string]int64{"seller-1": 1000})
			w, err := svc.CreateWithdrawal(context.Background(), bankTransfer("seller-1", 400))
			require.NoError(t, err)

			req := domain.FinalizeReq{WithdrawalID: w.ID, AdminID: "admin-1", Decision: decision}
			_, err = svc.Finalize(context.Background(), req)
			require.NoError(t, err)
			after := available(t, store, "seller-1")

			_, err = svc.Finalize(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
			assert.Equal(t, after, available(t, store, "seller-1"))
		})
	}
}

func TestFlow_ConcurrentCreatesCannotOverdraw(t *testing.T) {
	svc, store, _ := newFlow(t, map[string]int64{"seller-1": 1000})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateWithdrawal(context.Background(), bankTransfer("seller-1", 600))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, domain.ErrInsufficientBalance):
			insufficient++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(400), available(t, store, "seller-1"))
}

func TestFlow_ConcurrentFinalizeChangesBalanceOnce(t *testing.T) {
	svc, store, n := newFlow(t, map[string]int64{"seller-1": 1000})
	w, err := svc.CreateWithdrawal(context.Background(), bankTransfer("seller-1", 300))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Finalize(context.Background(), domain.FinalizeReq{
				WithdrawalID: w.ID, AdminID: "admin-1", Decision: domain.StatusRejected,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(1000), available(t, store, "seller-1"))
	assert.Equal(t, 1, n.count(domain.EventRejected))
}

// Many sellers, random amounts and decisions; the books must balance after.
func TestFlow_ReservedEqualsProcessing(t *testing.T) {
	sellers := map[string]int64{"a": 3000, "b": 1500, "c": 800}
	svc, store, _ := newFlow(t, sellers)

	var wg sync.WaitGroup
	for seller := range sellers {
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(seller string, seed int64) {
				defer wg.Done()
				rnd := rand.New(rand.NewSource(seed))
				w, err := svc.CreateWithdrawal(context.Background(), bankTransfer(seller, 100+rnd.Int63n(400)))
				if err != nil {
					return
				}
				switch rnd.Intn(3) {
				case 0:
					_, _ = svc.Finalize(context.Background(), domain.FinalizeReq{WithdrawalID: w.ID, AdminID: "x", Decision: domain.StatusSucceed})
				case 1:
					_, _ = svc.Finalize(context.Background(), domain.FinalizeReq{WithdrawalID: w.ID, AdminID: "x", Decision: domain.StatusRejected})
				}
			}(seller, int64(i))
		}
	}
	wg.Wait()

	for seller, initial := range sellers {
		acct, err := store.GetAccount(context.Background(), seller)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, acct.AvailableBalance, int64(0))

		list, err := svc.ListSellerWithdrawals(context.Background(), seller)
		require.NoError(t, err)
		var inFlight, paid int64
		for _, w := range list {
			switch w.Status {
			case domain.StatusProcessing:
				inFlight += w.Amount
			case domain.StatusSucceed:
				paid += w.Amount
			}
		}
		assert.Equal(t, inFlight, acct.Reserved(), seller)
		assert.Equal(t, initial-paid-inFlight, acct.AvailableBalance, seller)
	}

	st, err := svc.AggregateStats(context.Background())
	require.NoError(t, err)
	all, err := svc.ListAll(context.Background(), domain.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(len(all)), st.TotalCount)
}

func TestFlow_CreditFundsWithdrawals(t *testing.T) {
	svc, store, _ := newFlow(t, nil)

	_, err := svc.CreateWithdrawal(context.Background(), bankTransfer("seller-1", 500))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = svc.CreditBalance(context.Background(), "seller-1", 400)
	require.NoError(t, err)
	acct, err := svc.CreditBalance(context.Background(), "seller-1", 400)
	require.NoError(t, err)
	assert.Equal(t, int64(800), acct.AvailableBalance)

	_, err = svc.CreateWithdrawal(context.Background(), bankTransfer("seller-1", 500))
	require.NoError(t, err)
	assert.Equal(t, int64(300), available(t, store, "seller-1"))
}
