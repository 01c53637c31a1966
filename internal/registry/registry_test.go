package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookserver/internal/log"
)

func okHandler(body string) Handler {
	return HandlerFunc(func(ctx context.Context, d Delivery) (Result, error) {
		return Result{Body: body}, nil
	})
}

func TestRegisterDuplicate(t *testing.T) {
	r := New(log.Discard())
	require.NoError(t, r.Register("push", okHandler("first")))

	err := r.Register("push", okHandler("second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateHandler)

	out, err := r.Dispatch(context.Background(), Delivery{Event: "push"})
	require.NoError(t, err)
	assert.Equal(t, "first", out.Result.Body, "duplicate registration must not replace the original")
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	r := New(log.Discard())
	r.MustRegister("push", okHandler("a"))
	assert.Panics(t, func() { r.MustRegister("push", okHandler("b")) })
}

func TestRegisterValidation(t *testing.T) {
	r := New(log.Discard())
	assert.Error(t, r.Register("", okHandler("x")))
	assert.Error(t, r.Register("  ", okHandler("x")))
	assert.Error(t, r.Register(CatchAll, okHandler("x")))
	assert.Error(t, r.Register("push", nil))
	assert.Error(t, r.Subscribe("", okHandler("x")))
	assert.Error(t, r.Subscribe("push", nil))
	assert.Zero(t, r.Len())
}

func TestDispatchExactMatch(t *testing.T) {
	r := New(log.Discard())
	var got Delivery
	require.NoError(t, r.HandleFunc("pull_request", func(ctx context.Context, d Delivery) (Result, error) {
		got = d
		return Result{Status: http.StatusAccepted, Body: "queued"}, nil
	}))

	d := Delivery{Event: "pull_request", DeliveryID: "guid-1", Payload: map[string]any{"action": "opened"}}
	out, err := r.Dispatch(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, out.Handled)
	assert.Equal(t, Result{Status: http.StatusAccepted, Body: "queued"}, out.Result)
	assert.Equal(t, "guid-1", got.DeliveryID)

	_, err = r.Dispatch(context.Background(), Delivery{Event: "pull_request_review"})
	assert.ErrorIs(t, err, ErrNotRegistered)
	_, err = r.Dispatch(context.Background(), Delivery{Event: "Pull_Request"})
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestDispatchNotRegistered(t *testing.T) {
	r := New(log.Discard())
	out, err := r.Dispatch(context.Background(), Delivery{Event: "ping"})
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.False(t, out.Handled)
	assert.Equal(t, Result{Status: http.StatusOK, Body: "Hook not used"}, out.Result)
}

func TestDispatchDefaultsStatus(t *testing.T) {
	r := New(log.Discard())
	r.MustRegister("push", okHandler("done"))
	out, err := r.Dispatch(context.Background(), Delivery{Event: "push"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out.Result.Status)
}

func TestDispatchHandlerErrorAndPanic(t *testing.T) {
	r := New(log.Discard())
	r.MustRegister("push", HandlerFunc(func(context.Context, Delivery) (Result, error) {
		return Result{}, errors.New("db down")
	}))
	r.MustRegister("issues", HandlerFunc(func(context.Context, Delivery) (Result, error) {
		panic("nil map")
	}))

	_, err := r.Dispatch(context.Background(), Delivery{Event: "push"})
	assert.ErrorIs(t, err, ErrHandlerFailed)

	out, err := r.Dispatch(context.Background(), Delivery{Event: "issues"})
	assert.ErrorIs(t, err, ErrHandlerFailed)
	assert.Contains(t, err.Error(), "panic")
	assert.True(t, out.Handled)
}

func TestObserversRunIndependently(t *testing.T) {
	r := New(log.Discard())
	var order []string
	record := func(name string, fail bool) Handler {
		return HandlerFunc(func(ctx context.Context, d Delivery) (Result, error) {
			order = append(order, name)
			if fail {
				return Result{}, fmt.Errorf("%s failed", name)
			}
			return Result{}, nil
		})
	}

	require.NoError(t, r.Subscribe(CatchAll, record("audit", true)))
	require.NoError(t, r.Subscribe(CatchAll, HandlerFunc(func(context.Context, Delivery) (Result, error) {
		order = append(order, "panicky")
		panic("boom")
	})))
	require.NoError(t, r.Subscribe("push", record("push-observer", false)))
	require.NoError(t, r.Subscribe("issues", record("issues-observer", false)))
	r.MustRegister("push", HandlerFunc(func(ctx context.Context, d Delivery) (Result, error) {
		order = append(order, "handler")
		return Result{Body: "handled"}, nil
	}))

	out, err := r.Dispatch(context.Background(), Delivery{Event: "push"})
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "panicky", "push-observer", "handler"}, order)
	assert.Equal(t, 3, out.Notified)
	assert.Len(t, out.ObserverErrors, 2)
	assert.Equal(t, "handled", out.Result.Body)
}

func TestObserversOnlyDelivers(t *testing.T) {
	r := New(log.Discard())
	calls := 0
	require.NoError(t, r.Subscribe(CatchAll, HandlerFunc(func(context.Context, Delivery) (Result, error) {
		calls++
		return Result{}, nil
	})))

	out, err := r.Dispatch(context.Background(), Delivery{Event: "star"})
	require.NoError(t, err)
	assert.False(t, out.Handled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Result{Status: http.StatusOK, Body: "Hook delivered"}, out.Result)
}

func TestEvents(t *testing.T) {
	r := New(log.Discard())
	r.MustRegister("push", okHandler(""))
	r.MustRegister("issues", okHandler(""))
	assert.Equal(t, []string{"issues", "push"}, r.Events())
	assert.Equal(t, 2, r.Len())
}

func TestConcurrentRegisterAndDispatch(t *testing.T) {
	r := New(log.Discard())
	var wg sync.WaitGroup
	dups := make(chan error, 50)

	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := r.Register(fmt.Sprintf("event-%d", i%10), okHandler("x")); err != nil {
				dups <- err
			}
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Dispatch(context.Background(), Delivery{Event: fmt.Sprintf("event-%d", i%10)})
		}()
	}
	wg.Wait()
	close(dups)

	assert.Equal(t, 10, r.Len())
	n := 0
	for err := range dups {
		assert.ErrorIs(t, err, ErrDuplicateHandler)
		n++
	}
	assert.Equal(t, 40, n)
}
