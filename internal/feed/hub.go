// Package feed 是面向前端的实时信息流。
//
// 所有状态（最近的事件列表、订阅者）只由 Run 所在的 goroutine 读写，
// 轮询 worker 只通过 channel 把事件交给它，从不直接修改这些状态。
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/NewsWatch/internal/logger"
)

type Kind string

const (
	KindArticle   Kind = "article"
	KindFailure   Kind = "failure"
	KindSeparator Kind = "separator"
	KindStatus    Kind = "status"
	KindInfo      Kind = "info"
)

const (
	DefaultCapacity         = 500
	DefaultPublishBuffer    = 1024
	DefaultSubscriberBuffer = 64
)

// ErrHubClosed Run 已经退出
var ErrHubClosed = errors.New("feed: hub closed")

// Event 信息流中的一行
type Event struct {
	Seq      uint64    `json:"seq"`
	Kind     Kind      `json:"kind"`
	Text     string    `json:"text"`
	URL      string    `json:"url,omitempty"`
	SourceID string    `json:"sourceId,omitempty"`
	At       time.Time `json:"at"`
}

type subscriber struct {
	ch chan Event
}

type Hub struct {
	log      logger.Logger
	capacity int

	publish     chan Event
	snapshot    chan chan []Event
	subscribe   chan *subscriber
	unsubscribe chan *subscriber
	done        chan struct{}

	// 以下字段只在 Run 中访问
	events []Event
	subs   map[*subscriber]struct{}
	seq    uint64
}

func NewHub(capacity int, log logger.Logger) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		log:         log,
		capacity:    capacity,
		publish:     make(chan Event, DefaultPublishBuffer),
		snapshot:    make(chan chan []Event),
		subscribe:   make(chan *subscriber),
		unsubscribe: make(chan *subscriber),
		done:        make(chan struct{}),
		subs:        make(map[*subscriber]struct{}),
	}
}

// Run 处理事件直到 ctx 结束，结束时关闭所有订阅者的 channel
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for s := range h.subs {
			close(s.ch)
		}
		h.subs = nil
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.publish:
			h.add(ev)
		case reply := <-h.snapshot:
			out := make([]Event, len(h.events))
			copy(out, h.events)
			reply <- out
		case s := <-h.subscribe:
			h.subs[s] = struct{}{}
		case s := <-h.unsubscribe:
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.ch)
			}
		}
	}
}

func (h *Hub) add(ev Event) {
	h.seq++
	ev.Seq = h.seq
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	// 新事件放在最前面，超出容量的旧事件丢弃
	h.events = append(h.events, Event{})
	copy(h.events[1:], h.events)
	h.events[0] = ev
	if len(h.events) > h.capacity {
		h.events = h.events[:h.capacity]
	}

	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			// 慢订阅者直接丢弃，不能阻塞 owner
		}
	}
}

// Publish 把事件交给 owner goroutine，不会阻塞调用方
func (h *Hub) Publish(ev Event) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	select {
	case h.publish <- ev:
		return nil
	default:
		h.log.Warn("feed buffer full, event dropped",
			logger.String("kind", string(ev.Kind)),
			logger.String("text", ev.Text),
		)
		return fmt.Errorf("feed: publish buffer full (dropped %s event)", ev.Kind)
	}
}

// Snapshot 返回当前事件列表，最新的在前
func (h *Hub) Snapshot(ctx context.Context) ([]Event, error) {
	reply := make(chan []Event, 1)
	select {
	case h.snapshot <- reply:
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe 订阅之后发布的事件；调用 cleanup 取消订阅
func (h *Hub) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	s := &subscriber{ch: make(chan Event, DefaultSubscriberBuffer)}
	select {
	case h.subscribe <- s:
	case <-h.done:
		return nil, nil, ErrHubClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	cleanup := func() {
		select {
		case h.unsubscribe <- s:
		case <-h.done:
		}
	}
	return s.ch, cleanup, nil
}
