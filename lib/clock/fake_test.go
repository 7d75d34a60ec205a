// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNow(t *testing.T) {
	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)

	if !fake.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", fake.Now(), start)
	}

	fake.Advance(90 * time.Second)
	if !fake.Now().Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v", fake.Now())
	}
}

func TestFakeSetBackwardsPanics(t *testing.T) {
	fake := Fake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	defer func() {
		if recover() == nil {
			t.Error("Set to an earlier time should panic")
		}
	}()
	fake.Set(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestFakeTicker(t *testing.T) {
	fake := Fake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	ticker := fake.NewTicker(time.Minute)
	defer ticker.Stop()

	select {
	case <-ticker.C:
		t.Fatal("ticker fired before the clock advanced")
	default:
	}

	fake.Advance(time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after advancing one interval")
	}

	// Spanning several intervals delivers a single tick (the channel
	// is buffered with capacity 1, like time.Ticker).
	fake.Advance(5 * time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after advancing several intervals")
	}
	select {
	case <-ticker.C:
		t.Fatal("ticker queued more than one tick")
	default:
	}
}

func TestFakeTickerStop(t *testing.T) {
	fake := Fake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()

	fake.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}
