package notification

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/usecase"

	"github.com/rs/zerolog"
)

type stubHandler struct {
	out  *usecase.Outcome
	err  error
	data [][]byte
}

func (h *stubHandler) HandleData(ctx context.Context, data []byte) (*usecase.Outcome, error) {
	h.data = append(h.data, data)
	return h.out, h.err
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name    string
		handler *stubHandler
		wantLog string
	}{
		{
			name:    "malformed payload is logged",
			handler: &stubHandler{err: domain.ErrMalformedNotification},
			wantLog: "notification dropped",
		},
		{
			name:    "sync failure is logged",
			handler: &stubHandler{out: &usecase.Outcome{MailboxID: "agent@x.com", HistoryID: 9, Err: errors.New("503")}},
			wantLog: `"error":"503"`,
		},
		{
			name:    "ignored mailbox",
			handler: &stubHandler{out: &usecase.Outcome{MailboxID: "other@y.com", Ignored: true}},
			wantLog: `"ignored":true`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s := &Service{handler: tt.handler, log: zerolog.New(&buf).Level(zerolog.DebugLevel)}

			s.handleMessage(context.Background(), "m-1", []byte(`{"emailAddress":"agent@x.com","historyId":"9"}`))

			if len(tt.handler.data) != 1 {
				t.Fatalf("expected payload to reach the handler once, got %d", len(tt.handler.data))
			}
			if !strings.Contains(buf.String(), tt.wantLog) {
				t.Fatalf("expected log to contain %s, got %s", tt.wantLog, buf.String())
			}
			if !strings.Contains(buf.String(), `"pubsub_message_id":"m-1"`) {
				t.Fatalf("expected message id in log, got %s", buf.String())
			}
		})
	}
}
