package utils

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestRollingAverage(t *testing.T) {
	ra := NewRollingAverage(3)
	test.That(t, ra.NumSamples(), test.ShouldEqual, 3)
	test.That(t, ra.Average(), test.ShouldEqual, 0.0)

	ra.Add(3)
	test.That(t, ra.Average(), test.ShouldEqual, 3.0)
	ra.Add(6)
	test.That(t, ra.Average(), test.ShouldEqual, 4.5)
	ra.Add(9)
	test.That(t, ra.Average(), test.ShouldEqual, 6.0)
	// 3 is evicted.
	ra.Add(12)
	test.That(t, ra.Average(), test.ShouldEqual, 9.0)
}

func TestClamp(t *testing.T) {
	test.That(t, Clamp(-0.5, 0, 1), test.ShouldEqual, 0.0)
	test.That(t, Clamp(0.25, 0, 1), test.ShouldEqual, 0.25)
	test.That(t, Clamp(1.5, 0, 1), test.ShouldEqual, 1.0)
}

type ctxCloser struct{ closed int }

func (c *ctxCloser) Close(ctx context.Context) error {
	c.closed++
	return nil
}

type plainCloser struct{ err error }

func (c plainCloser) Close() error {
	return c.err
}

func TestTryClose(t *testing.T) {
	ctx := context.Background()
	withCtx := &ctxCloser{}
	test.That(t, TryClose(ctx, withCtx), test.ShouldBeNil)
	test.That(t, withCtx.closed, test.ShouldEqual, 1)

	test.That(t, TryClose(ctx, plainCloser{errors.New("busy")}), test.ShouldBeError, errors.New("busy"))
	test.That(t, TryClose(ctx, 5), test.ShouldBeNil)
	test.That(t, TryClose(ctx, nil), test.ShouldBeNil)
}
