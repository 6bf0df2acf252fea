package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// captureUI records presented requests so tests can answer them.
type captureUI struct {
	mu   sync.Mutex
	reqs []Request
	err  error
}

func (u *captureUI) Present(_ context.Context, req Request) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.reqs = append(u.reqs, req)
	return nil
}

func (u *captureUI) last() Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.reqs[len(u.reqs)-1]
}

func TestRequest_Approved(t *testing.T) {
	ui := &captureUI{}
	c := New(ui, time.Minute)

	done := make(chan Outcome, 1)
	go func() {
		out, err := c.Request(context.Background(), Request{ThreadKey: "t/1", BuyerName: "Alex"})
		if err != nil {
			t.Error(err)
		}
		done <- out
	}()

	waitForPresented(t, ui, 1)
	if !c.Resolve(ui.last().ID, true) {
		t.Fatal("Resolve returned false for pending request")
	}

	out := <-done
	if !out.Approved || out.CustomQueued || out.State != StateApproved {
		t.Errorf("outcome = %+v, want approved", out)
	}
}

func TestRequest_DoubleAnswerIsNoOp(t *testing.T) {
	ui := &captureUI{}
	c := New(ui, time.Minute)

	done := make(chan Outcome, 1)
	go func() {
		out, _ := c.Request(context.Background(), Request{ThreadKey: "t/1"})
		done <- out
	}()

	waitForPresented(t, ui, 1)
	id := ui.last().ID

	if !c.Resolve(id, false) {
		t.Fatal("first answer should resolve")
	}
	if c.Resolve(id, true) {
		t.Error("second answer must be a no-op")
	}
	if c.ResolveCustom(id, "late custom") {
		t.Error("custom after resolution must be a no-op")
	}

	out := <-done
	if out.Approved || out.State != StateDeclined {
		t.Errorf("outcome = %+v, want first answer (declined)", out)
	}
	select {
	case a := <-c.Actions():
		t.Errorf("no action should be queued, got %+v", a)
	default:
	}
}

func TestRequest_TimeoutDeclines(t *testing.T) {
	ui := &captureUI{}
	c := New(ui, 30*time.Millisecond)

	out, err := c.Request(context.Background(), Request{ThreadKey: "t/1"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Approved || out.State != StateExpired {
		t.Errorf("outcome = %+v, want expired/declined", out)
	}

	// A late UI answer after expiry is ignored.
	if c.Resolve(ui.last().ID, true) {
		t.Error("answer after expiry must be a no-op")
	}
}

func TestRequest_CustomQueuesSendAction(t *testing.T) {
	ui := &captureUI{}
	c := New(ui, time.Minute)

	done := make(chan Outcome, 1)
	go func() {
		out, _ := c.Request(context.Background(), Request{
			ThreadKey:      "t/1",
			Href:           "/t/1",
			BuyerName:      "Alex",
			MeetupTimeText: "Sat 2pm",
		})
		done <- out
	}()

	waitForPresented(t, ui, 1)
	if !c.ResolveCustom(ui.last().ID, "I'll confirm tonight") {
		t.Fatal("ResolveCustom returned false")
	}

	out := <-done
	if !out.Approved || !out.CustomQueued || out.State != StateCustomQueued {
		t.Errorf("outcome = %+v, want custom-queued", out)
	}

	select {
	case a := <-c.Actions():
		if a.Text != "I'll confirm tonight" || a.ThreadKey != "t/1" || a.Href != "/t/1" {
			t.Errorf("unexpected action %+v", a)
		}
		if a.MeetupTimeText != "Sat 2pm" {
			t.Errorf("meetup time not carried: %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("expected exactly one queued send action")
	}
	select {
	case a := <-c.Actions():
		t.Errorf("second action queued unexpectedly: %+v", a)
	default:
	}
}

func TestRequest_SameThreadRejectedWhilePending(t *testing.T) {
	ui := &captureUI{}
	c := New(ui, time.Minute)

	done := make(chan Outcome, 1)
	go func() {
		out, _ := c.Request(context.Background(), Request{ThreadKey: "t/1"})
		done <- out
	}()
	waitForPresented(t, ui, 1)

	_, err := c.Request(context.Background(), Request{ThreadKey: "t/1"})
	if !errors.Is(err, ErrThreadPending) {
		t.Fatalf("err = %v, want ErrThreadPending", err)
	}

	// A different thread is fine.
	go func() {
		c.Request(context.Background(), Request{ThreadKey: "t/2"})
	}()
	waitForPresented(t, ui, 2)

	// After resolution the thread accepts new requests.
	c.Resolve(ui.reqs[0].ID, true)
	<-done
	go func() {
		c.Request(context.Background(), Request{ThreadKey: "t/1"})
	}()
	waitForPresented(t, ui, 3)
}

func TestRequest_PresentFailureDeclines(t *testing.T) {
	ui := &captureUI{err: errors.New("telegram down")}
	c := New(ui, time.Minute)

	out, err := c.Request(context.Background(), Request{ThreadKey: "t/1"})
	if err == nil {
		t.Fatal("expected present error")
	}
	if out.Approved {
		t.Errorf("outcome = %+v, want declined", out)
	}
}

func waitForPresented(t *testing.T, ui *captureUI, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ui.mu.Lock()
		got := len(ui.reqs)
		ui.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("request %d never presented", n)
}
