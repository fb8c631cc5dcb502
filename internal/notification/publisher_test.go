package notification

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/fcm"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/sse"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []fcm.NotificationData
	topic string
	err   error
}

func (s *recordingSender) SendToTopic(ctx context.Context, topic string, n fcm.NotificationData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topic = topic
	s.sent = append(s.sent, n)
	return s.err
}

func testEvent() domain.IngestEvent {
	return domain.IngestEvent{
		ID:           "evt-1",
		Reason:       domain.EventReasonSync,
		MailboxID:    "agent@x.com",
		CreatedCount: 2,
		LatestCursor: 105,
		At:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_SendsToFCMTopic(t *testing.T) {
	sender := &recordingSender{}
	p := NewPublisher(nil, sender, "mailsync-ingest", zerolog.Nop())

	p.Publish(context.Background(), testEvent())
	p.Wait()

	if sender.topic != "mailsync-ingest" || len(sender.sent) != 1 {
		t.Fatalf("expected one send to mailsync-ingest, got %q %d", sender.topic, len(sender.sent))
	}
	data := sender.sent[0].Data
	if data["mailbox"] != "agent@x.com" || data["created"] != "2" || data["latestCursor"] != "105" {
		t.Fatalf("unexpected data payload %v", data)
	}
}

func TestPublisher_FCMFailureIsSwallowed(t *testing.T) {
	sender := &recordingSender{err: errors.New("quota")}
	p := NewPublisher(nil, sender, "t", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Publish(ctx, testEvent())
	p.Wait()

	if len(sender.sent) != 1 {
		t.Fatalf("expected send to be attempted despite cancelled ctx, got %d", len(sender.sent))
	}
}

func TestPublisher_SkipsFCMWithoutTopic(t *testing.T) {
	sender := &recordingSender{}
	p := NewPublisher(nil, sender, "", zerolog.Nop())
	p.Publish(context.Background(), testEvent())
	p.Wait()
	if len(sender.sent) != 0 {
		t.Fatal("expected no FCM send without a topic")
	}
}

func TestPublisher_StreamsToSSE(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := sse.NewManager()
	go manager.Run(ctx)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/events", func(c *gin.Context) {
		manager.ServeHTTP(c, c.Query("mailbox"))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
	defer reqCancel()
	req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/api/events?mailbox=agent@x.com", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for manager.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("sse client did not register")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p := NewPublisher(manager, nil, "", zerolog.Nop())
	p.Publish(context.Background(), testEvent())

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event:ingest" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data:") {
			if !strings.Contains(line, `"mailboxId":"agent@x.com"`) || !strings.Contains(line, `"latestCursor":"105"`) {
				t.Fatalf("unexpected event data %s", line)
			}
			return
		}
	}
	t.Fatalf("ingest event not received: %v", scanner.Err())
}
