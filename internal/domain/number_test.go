package domain

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberFormat(t *testing.T) {
	orderNo := NewOrderNo()
	paymentNo := NewPaymentNo()

	assert.True(t, strings.HasPrefix(orderNo, "ORD"))
	assert.True(t, strings.HasPrefix(paymentNo, "PAY"))
	assert.Len(t, orderNo, 3+26)
	assert.Len(t, paymentNo, 3+26)
}

func TestNumberRoughlyTimeOrdered(t *testing.T) {
	first := NewOrderNo()
	time.Sleep(2 * time.Millisecond)
	second := NewOrderNo()
	assert.Less(t, first, second)
}

func TestNumberUniqueUnderConcurrency(t *testing.T) {
	const workers = 8
	const perWorker = 2000

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, NewPaymentNo())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, no := range local {
				seen[no] = true
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker, "generated numbers collided")
}
