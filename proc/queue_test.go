package proc

import (
	"reflect"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	var q Queue
	if _, ok := q.Head(); ok {
		t.Fatal("Expected empty queue to have no head")
	}

	for i, title := range []string{"A", "B", "A"} {
		if pos := q.Push(Track{Title: title}); pos != i+1 {
			t.Errorf("Expected position %d, got %d", i+1, pos)
		}
	}

	if got := q.Titles(); !reflect.DeepEqual(got, []string{"A", "B", "A"}) {
		t.Errorf("Expected duplicates kept in insertion order, got %v", got)
	}

	head, ok := q.Pop()
	if !ok || head.Title != "A" {
		t.Errorf("Expected to pop A, got %q (ok=%v)", head.Title, ok)
	}
	if next, _ := q.Head(); next.Title != "B" {
		t.Errorf("Expected head B, got %q", next.Title)
	}
	if q.Len() != 2 {
		t.Errorf("Expected length 2, got %d", q.Len())
	}
}

func TestQueue_PopEmpty(t *testing.T) {
	var q Queue
	if _, ok := q.Pop(); ok {
		t.Error("Expected Pop on empty queue to report false")
	}
	q.Push(Track{Title: "A"})
	q.Pop()
	if _, ok := q.Pop(); ok {
		t.Error("Expected Pop after draining to report false")
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got %d", q.Len())
	}
}

func TestQueue_TracksIsCopy(t *testing.T) {
	var q Queue
	q.Push(Track{Title: "A"})
	tracks := q.Tracks()
	tracks[0].Title = "changed"

	if head, _ := q.Head(); head.Title != "A" {
		t.Errorf("Expected snapshot edits not to leak into the queue, head is %q", head.Title)
	}
}

func TestQueue_Clear(t *testing.T) {
	var q Queue
	q.Push(Track{Title: "A"})
	q.Push(Track{Title: "B"})
	q.Clear()
	if q.Len() != 0 || len(q.Titles()) != 0 {
		t.Errorf("Expected cleared queue, got %v", q.Titles())
	}
}
