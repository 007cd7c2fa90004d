// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpdata

import (
	"sync"
)

// throttle limits the number of concurrently running goroutines
// started with Go to Max.
type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan bool
	setupOnce sync.Once
}

func (t *throttle) Acquire() {
	t.setupOnce.Do(func() {
		if t.Max < 1 {
			t.Max = 1
		}
		t.ch = make(chan bool, t.Max)
	})
	t.wg.Add(1)
	t.ch <- true
}

func (t *throttle) Release() {
	t.wg.Done()
	<-t.ch
}

// Go blocks until a slot is available, then runs f in a new
// goroutine.
func (t *throttle) Go(f func()) {
	t.Acquire()
	go func() {
		defer t.Release()
		f()
	}()
}

func (t *throttle) Wait() {
	t.wg.Wait()
}
