package channel

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func record(trace *[]string, name string) Middleware[string] {
	return func(next Handler[string]) Handler[string] {
		return func(ctx context.Context, req string) error {
			*trace = append(*trace, name+":in")
			err := next(ctx, req)
			*trace = append(*trace, name+":out")
			return err
		}
	}
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var trace []string
	h := Chain[string](func(context.Context, string) error {
		trace = append(trace, "handler")
		return nil
	}, record(&trace, "a"), nil, record(&trace, "b"))

	if err := h(context.Background(), "req"); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	want := []string{"a:in", "b:in", "handler", "b:out", "a:out"}
	if !slices.Equal(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestChain_ShortCircuit(t *testing.T) {
	t.Parallel()

	called := false
	deny := func(Handler[string]) Handler[string] {
		return func(context.Context, string) error { return ErrDenied }
	}
	h := Chain[string](func(context.Context, string) error {
		called = true
		return nil
	}, deny)

	if err := h(context.Background(), "req"); !errors.Is(err, ErrDenied) {
		t.Errorf("error = %v, want ErrDenied", err)
	}
	if called {
		t.Error("handler should not run after a rejecting middleware")
	}
}
