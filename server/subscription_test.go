package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscriptionSubscribeAndSubscribers(t *testing.T) {
	m := newSubscriptionManager()
	uri1 := "file:///a.txt"
	uri2 := "file:///b.txt"

	require.Empty(t, m.subscribers(uri1))

	m.subscribe("sess-1", uri1)
	require.ElementsMatch(t, []string{"sess-1"}, m.subscribers(uri1))
	require.Empty(t, m.subscribers(uri2))

	m.subscribe("sess-1", uri1) // idempotent
	require.ElementsMatch(t, []string{"sess-1"}, m.subscribers(uri1))

	m.subscribe("sess-2", uri1)
	require.ElementsMatch(t, []string{"sess-1", "sess-2"}, m.subscribers(uri1))
}

func TestSubscriptionUnsubscribe(t *testing.T) {
	m := newSubscriptionManager()
	uri := "file:///a.txt"
	m.subscribe("sess-1", uri)
	m.subscribe("sess-2", uri)

	m.unsubscribe("sess-1", uri)
	require.ElementsMatch(t, []string{"sess-2"}, m.subscribers(uri))

	m.unsubscribe("sess-2", uri)
	require.Empty(t, m.subscribers(uri), "the byURI entry is pruned once empty")

	// Unsubscribing an unknown session/uri pair is a no-op, not an error.
	m.unsubscribe("sess-3", "file:///never-subscribed.txt")
	m.unsubscribe("sess-1", uri)
}

func TestSubscriptionRemoveSessionDropsAllItsSubscriptions(t *testing.T) {
	m := newSubscriptionManager()
	m.subscribe("sess-1", "file:///a.txt")
	m.subscribe("sess-1", "file:///b.txt")
	m.subscribe("sess-2", "file:///a.txt")

	m.removeSession("sess-1")

	require.ElementsMatch(t, []string{"sess-2"}, m.subscribers("file:///a.txt"))
	require.Empty(t, m.subscribers("file:///b.txt"))
}

func TestSubscriptionConcurrentAccess(t *testing.T) {
	m := newSubscriptionManager()
	const n = 50
	uri := "file:///concurrent.txt"

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			sess := fmt.Sprintf("sess-%d", idx)
			m.subscribe(sess, uri)
		}(i)
	}
	wg.Wait()
	require.Len(t, m.subscribers(uri), n)

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			sess := fmt.Sprintf("sess-%d", idx)
			m.unsubscribe(sess, uri)
		}(i)
	}
	wg.Wait()
	require.Empty(t, m.subscribers(uri))
}
