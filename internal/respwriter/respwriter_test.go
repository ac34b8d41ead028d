package respwriter_test

import (
	"errors"
	"testing"

	"github.com/matgreaves/urishort/internal/respwriter"
)

func TestWriter_SendDeliversWhileAlive(t *testing.T) {
	var gotStatus int
	var gotBody []byte
	w := respwriter.New(func(status int, headers map[string]string, body []byte) {
		gotStatus = status
		gotBody = body
	}, nil)

	w.Send(200, nil, []byte("ok"))
	if gotStatus != 200 || string(gotBody) != "ok" {
		t.Fatalf("got (%d, %q), want (200, ok)", gotStatus, gotBody)
	}
}

func TestWriter_SendDroppedAfterClose(t *testing.T) {
	called := false
	w := respwriter.New(func(status int, headers map[string]string, body []byte) {
		called = true
	}, nil)

	w.Close()
	w.Send(200, nil, nil)
	if called {
		t.Fatal("Send after Close: want dropped")
	}
}

func TestWriter_PostWorkIndirection(t *testing.T) {
	var scheduled func()
	w := respwriter.New(func(status int, headers map[string]string, body []byte) {}, func(f func()) {
		scheduled = f
	})

	called := false
	w.Close()
	w2 := respwriter.New(func(status int, headers map[string]string, body []byte) {
		called = true
	}, func(f func()) {
		scheduled = f
	})
	w2.Send(200, nil, nil)
	if called {
		t.Fatal("Send: want deferred to postWork, not invoked inline")
	}
	if scheduled == nil {
		t.Fatal("postWork: want scheduled closure")
	}
	scheduled()
	if !called {
		t.Fatal("after running scheduled closure: want Send delivered")
	}
	_ = w
}

func TestWriter_ScopedResourcesReleasedInReverseOrder(t *testing.T) {
	var order []int
	w := respwriter.New(func(status int, headers map[string]string, body []byte) {}, nil)
	w.AddScopedResource(respwriter.CloserFunc(func() error { order = append(order, 1); return nil }))
	w.AddScopedResource(respwriter.CloserFunc(func() error { order = append(order, 2); return nil }))
	w.AddScopedResource(respwriter.CloserFunc(func() error { order = append(order, 3); return nil }))

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestWriter_CloseIsIdempotentAndReportsFirstError(t *testing.T) {
	w := respwriter.New(func(status int, headers map[string]string, body []byte) {}, nil)
	w.AddScopedResource(respwriter.CloserFunc(func() error { return errors.New("boom") }))

	if err := w.Close(); err == nil {
		t.Fatal("Close: want error from scoped resource")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: want nil, got %v", err)
	}
}
