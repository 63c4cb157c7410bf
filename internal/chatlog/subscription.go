package chatlog

import (
	"context"
	"sync"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

// Subscription is a live, ordered view of one conversation log. C carries the
// full snapshot per remote mutation (including one initial emission).
// Emissions never block the log: if the consumer lags, a newer snapshot
// replaces the queued one (latest wins — each snapshot is complete, so
// intermediate ones carry no extra information).
type Subscription struct {
	C <-chan []model.Message

	ch     chan []model.Message
	watch  *store.Watch
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Close releases the remote listener. Required on every exit path.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		s.watch.Close()
		<-s.done
	})
}

// Subscribe registers a remote listener for the conversation and starts
// snapshot delivery. Blocks only for listener setup; emissions are
// asynchronous. The context bounds the subscription's lifetime: cancelling it
// is equivalent to Close.
func (l *Log) Subscribe(ctx context.Context, conversationID string) (*Subscription, error) {
	watch, err := l.store.WatchConversation(conversationID)
	if err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		ch:     make(chan []model.Message, 1),
		watch:  watch,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.C = s.ch

	go func() {
		defer close(s.done)
		// Only this goroutine writes to ch; closing it here lets consumers
		// range over C and exit cleanly when the subscription ends.
		defer close(s.ch)
		defer watch.Close()
		s.emit(subCtx, l, conversationID)
		for {
			select {
			case <-subCtx.Done():
				return
			case <-watch.C:
				s.emit(subCtx, l, conversationID)
			}
		}
	}()
	return s, nil
}

func (s *Subscription) emit(ctx context.Context, l *Log, conversationID string) {
	msgs, err := l.Messages(ctx, conversationID)
	if err != nil {
		// Transient listing failures keep the listener alive; the next
		// mutation retries.
		logger.Errorf("chatlog subscribe %s: %v", conversationID, err)
		return
	}
	push(s.ch, msgs)
}

// GroupSubscription mirrors Subscription for group logs.
type GroupSubscription struct {
	C <-chan []model.GroupMessage

	ch     chan []model.GroupMessage
	watch  *store.Watch
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *GroupSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		s.watch.Close()
		<-s.done
	})
}

// SubscribeGroup registers a remote listener for the group log.
func (l *Log) SubscribeGroup(ctx context.Context, groupID string) (*GroupSubscription, error) {
	watch, err := l.store.WatchGroup(groupID)
	if err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)
	s := &GroupSubscription{
		ch:     make(chan []model.GroupMessage, 1),
		watch:  watch,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.C = s.ch

	go func() {
		defer close(s.done)
		defer close(s.ch)
		defer watch.Close()
		s.emit(subCtx, l, groupID)
		for {
			select {
			case <-subCtx.Done():
				return
			case <-watch.C:
				s.emit(subCtx, l, groupID)
			}
		}
	}()
	return s, nil
}

func (s *GroupSubscription) emit(ctx context.Context, l *Log, groupID string) {
	msgs, err := l.GroupMessages(ctx, groupID)
	if err != nil {
		logger.Errorf("chatlog subscribe group %s: %v", groupID, err)
		return
	}
	push(s.ch, msgs)
}

// push delivers a snapshot with latest-wins semantics and never blocks.
func push[T any](ch chan []T, snap []T) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		// Queue full: discard the stale snapshot and retry with the new one.
		select {
		case <-ch:
		default:
		}
	}
}
