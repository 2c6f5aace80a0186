package sim

import (
	"testing"
)

func TestWaitQueue_Peek_NonEmpty_ReturnsFront(t *testing.T) {
	// GIVEN a queue with two withdrawals
	wq := &WaitQueue{}
	w1 := &Withdrawal{Amount: 5, RequestedAt: 1}
	w2 := &Withdrawal{Amount: 3, RequestedAt: 2}
	wq.Enqueue(w1)
	wq.Enqueue(w2)

	// WHEN we peek
	got := wq.Peek()

	// THEN the front is returned without removal
	if got != w1 {
		t.Errorf("Peek() = %v, want %v", got, w1)
	}
	if wq.Len() != 2 {
		t.Errorf("Len() after Peek = %d, want 2", wq.Len())
	}
}

func TestWaitQueue_Peek_Empty_ReturnsNil(t *testing.T) {
	wq := &WaitQueue{}
	if got := wq.Peek(); got != nil {
		t.Errorf("Peek() on empty queue = %v, want nil", got)
	}
	if got := wq.Dequeue(); got != nil {
		t.Errorf("Dequeue() on empty queue = %v, want nil", got)
	}
}

func TestWaitQueue_RemoveAt_PreservesOrder(t *testing.T) {
	// GIVEN a queue [a b c]
	wq := &WaitQueue{}
	a := &Withdrawal{Amount: 1}
	b := &Withdrawal{Amount: 2}
	c := &Withdrawal{Amount: 3}
	wq.Enqueue(a)
	wq.Enqueue(b)
	wq.Enqueue(c)

	// WHEN the middle entry is removed
	got := wq.RemoveAt(1)

	// THEN the rest keep their relative order
	if got != b {
		t.Errorf("RemoveAt(1) = %v, want %v", got, b)
	}
	items := wq.Items()
	if len(items) != 2 || items[0] != a || items[1] != c {
		t.Errorf("Items() = %v, want [a c]", items)
	}
}

func TestWaitQueue_RemoveAt_OutOfRange_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("RemoveAt(3) on a 1-element queue did not panic")
		}
	}()
	wq := &WaitQueue{}
	wq.Enqueue(&Withdrawal{Amount: 1})
	wq.RemoveAt(3)
}

func TestWaitQueue_Dequeue_FIFO(t *testing.T) {
	wq := &WaitQueue{}
	for i := int64(1); i <= 3; i++ {
		wq.Enqueue(&Withdrawal{Amount: i, RequestedAt: i * 10})
	}
	for i := int64(1); i <= 3; i++ {
		if got := wq.Dequeue(); got.Amount != i {
			t.Errorf("Dequeue #%d amount = %d, want %d", i, got.Amount, i)
		}
	}
}

func TestWaitQueue_String(t *testing.T) {
	wq := &WaitQueue{}
	wq.Enqueue(&Withdrawal{Amount: 5, RequestedAt: 1})
	wq.Enqueue(&Withdrawal{Amount: 3, RequestedAt: 2})
	if got, want := wq.String(), "[5@1 3@2]"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
