package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachIndexed_PreservesOrder(t *testing.T) {
	p := New(4)
	defer p.Close()

	out := make([]int, 100)
	err := ForEachIndexed(context.Background(), p, len(out), func(i int) error {
		out[i] = i * i
		return nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestForEachIndexed_CollectsFirstError(t *testing.T) {
	p := New(2)
	defer p.Close()

	wantErr := errors.New("boom")
	var calls int64
	err := ForEachIndexed(context.Background(), p, 10, func(i int) error {
		atomic.AddInt64(&calls, 1)
		if i == 5 {
			return wantErr
		}
		return nil
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestForEachIndexed_NilPoolRunsSequentially(t *testing.T) {
	out := make([]int, 20)
	err := ForEachIndexed(context.Background(), nil, len(out), func(i int) error {
		out[i] = i + 1
		return nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i+1, v)
	}
}

func TestForEachIndexed_Empty(t *testing.T) {
	p := New(2)
	defer p.Close()
	err := ForEachIndexed(context.Background(), p, 0, func(i int) error {
		t.Fatal("should not be called")
		return nil
	})
	assert.NoError(t, err)
}
