package notify

import (
	"context"
	"encoding/json"
	"errors"
	"payouts/internal/config"
	"payouts/internal/domain"
	"payouts/internal/repository/memory"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type sent struct {
	to, subject, body string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	err  error
	gate chan struct{}
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, sent{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func directory() *memory.Store {
	store := memory.NewStore()
	store.AddSeller(domain.SellerContact{SellerID: "s1", Name: "Ayesha", Email: "ayesha@example.com"})
	return store
}

func notification(event domain.NotificationEvent) domain.Notification {
	return domain.Notification{
		Event:         event,
		SellerID:      "s1",
		WithdrawalID:  "7f1c2d1e-2f0a-4c53-9d7e-5c1b2a3d4e5f",
		Amount:        5000,
		TransactionID: "WD1700000000000ABC123DEF",
		OccurredAt:    time.Unix(1700000000, 0).UTC(),
	}
}

func TestRender(t *testing.T) {
	contact := &domain.SellerContact{SellerID: "s1", Name: "Ayesha", Email: "ayesha@example.com"}

	subject, body := Render(notification(domain.EventSubmitted), contact)
	assert.Equal(t, "Withdrawal request received", subject)
	assert.Contains(t, body, "Hi Ayesha")
	assert.Contains(t, body, "50.00")
	assert.Contains(t, body, "WD1700000000000ABC123DEF")

	n := notification(domain.EventRejected)
	n.Note = "account title mismatch"
	subject, body = Render(n, contact)
	assert.Equal(t, "Withdrawal rejected", subject)
	assert.Contains(t, body, "back in your available balance")
	assert.Contains(t, body, "account title mismatch")

	subject, _ = Render(notification(domain.EventSucceeded), &domain.SellerContact{})
	assert.Equal(t, "Withdrawal approved", subject)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.05", formatAmount(5))
	assert.Equal(t, "1234.50", formatAmount(123450))
	assert.Equal(t, "-1.00", formatAmount(-100))
}

func TestDeliverer(t *testing.T) {
	sender := &fakeSender{}
	d := NewDeliverer(directory(), sender, nil)

	require.NoError(t, d.Deliver(context.Background(), notification(domain.EventSucceeded)))
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "ayesha@example.com", sender.msgs[0].to)

	n := notification(domain.EventSucceeded)
	n.SellerID = "ghost"
	assert.ErrorIs(t, d.Deliver(context.Background(), n), domain.ErrSellerNotFound)

	sender.err = errors.New("smtp down")
	assert.ErrorContains(t, d.Deliver(context.Background(), notification(domain.EventSucceeded)), "smtp down")
}

func TestQueue_DeliversAndDrains(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(16, 2, NewDeliverer(directory(), sender, nil).Deliver, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Notify(context.Background(), notification(domain.EventSubmitted)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, 10, sender.count())

	assert.ErrorIs(t, q.Notify(context.Background(), notification(domain.EventSubmitted)), ErrQueueClosed)
	require.NoError(t, q.Close(ctx), "close is idempotent")
}

func TestQueue_FullDropsInsteadOfBlocking(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{})}
	q := NewQueue(1, 1, NewDeliverer(directory(), sender, nil).Deliver, nil)

	// One event is held by the worker, one sits in the buffer.
	require.NoError(t, q.Notify(context.Background(), notification(domain.EventSubmitted)))
	require.Eventually(t, func() bool {
		return q.Notify(context.Background(), notification(domain.EventSubmitted)) == nil
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, q.Notify(context.Background(), notification(domain.EventSubmitted)), ErrQueueFull)

	close(sender.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, 2, sender.count())
}

func TestQueue_LogsFailedDelivery(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sender := &fakeSender{err: errors.New("mailbox unavailable")}
	q := NewQueue(4, 1, NewDeliverer(directory(), sender, nil).Deliver, zap.New(core))

	require.NoError(t, q.Notify(context.Background(), notification(domain.EventRejected)))
	require.NoError(t, q.Close(context.Background()))

	entries := logs.FilterMessage("notification failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rejected", entries[0].ContextMap()["event"])
}

func TestQueue_NotifyDoesNotWaitForDelivery(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan domain.Notification, 1)
	slow := func(ctx context.Context, n domain.Notification) error {
		<-release
		delivered <- n
		return nil
	}
	q := NewQueue(4, 1, slow, nil)

	start := time.Now()
	require.NoError(t, q.Notify(context.Background(), notification(domain.EventSucceeded)))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Empty(t, delivered)

	close(release)
	select {
	case n := <-delivered:
		assert.Equal(t, domain.EventSucceeded, n.Event)
	case <-time.After(5 * time.Second):
		t.Fatal("notification never delivered")
	}
	require.NoError(t, q.Close(context.Background()))
}

func TestNewTask(t *testing.T) {
	n := notification(domain.EventSucceeded)
	task, err := NewTask(n, "notifications")
	require.NoError(t, err)
	assert.Equal(t, TypeWithdrawalNotify, task.Type())

	var decoded domain.Notification
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, n, decoded)
}

func TestTaskHandler(t *testing.T) {
	sender := &fakeSender{}
	h := NewTaskHandler(NewDeliverer(directory(), sender, nil))

	task, err := NewTask(notification(domain.EventSubmitted), "notifications")
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Equal(t, 1, sender.count())
	assert.Equal(t, "Withdrawal request received", sender.msgs[0].subject)

	err = h.ProcessTask(context.Background(), asynq.NewTask(TypeWithdrawalNotify, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("payouts@example.com", "ayesha@example.com", "Withdrawal approved", "line one\nline two"))

	assert.True(t, strings.HasPrefix(msg, "From: payouts@example.com\r\n"))
	assert.Contains(t, msg, "To: ayesha@example.com\r\n")
	assert.Contains(t, msg, "Subject: Withdrawal approved\r\n")
	assert.Contains(t, msg, "\r\n\r\nline one\r\nline two\r\n")
}

func TestNewSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewSender(config.MailConfig{}, zap.New(core))
	require.IsType(t, &LogSender{}, s)
	require.NoError(t, s.Send(context.Background(), "a@example.com", "hi", "body"))
	assert.Equal(t, 1, logs.FilterMessage("mail").Len())

	assert.IsType(t, &SMTPMailer{}, NewSender(config.MailConfig{Host: "smtp.example.com", Port: "465"}, zap.NewNop()))
}
