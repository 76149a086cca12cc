// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package incgc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
)

func TestWorklistPushPopOrder(t *testing.T) {
	var w Worklist
	a, b, c := &box.Header{}, &box.Header{}, &box.Header{}
	w.Push(a)
	w.Push(b)
	w.Push(c)
	assert.Equal(t, int64(3), w.Len())

	v, ok := w.Pop()
	assert.True(t, ok)
	assert.Same(t, c, v, "Treiber stack pops LIFO")
	assert.Equal(t, int64(2), w.Len())
}

func TestWorklistPopEmpty(t *testing.T) {
	var w Worklist
	v, ok := w.Pop()
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestWorklistDrainVisitsEverythingAndEmpties(t *testing.T) {
	var w Worklist
	for i := 0; i < 10; i++ {
		w.Push(&box.Header{})
	}
	var seen int
	w.Drain(func(*box.Header) { seen++ })
	assert.Equal(t, 10, seen)
	assert.Equal(t, int64(0), w.Len())
	_, ok := w.Pop()
	assert.False(t, ok)
}

func TestWorklistConcurrentPushPop(t *testing.T) {
	var w Worklist
	const n = 500
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			w.Push(&box.Header{})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(n), w.Len())

	var popWg sync.WaitGroup
	popped := make(chan *box.Header, n)
	popWg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer popWg.Done()
			v, ok := w.Pop()
			if ok {
				popped <- v
			}
		}()
	}
	popWg.Wait()
	close(popped)
	var count int
	for range popped {
		count++
	}
	assert.Equal(t, n, count)
	assert.Equal(t, int64(0), w.Len())
}
