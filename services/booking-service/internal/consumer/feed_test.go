package consumer

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestFeedHandler(t *testing.T) {
	var buf bytes.Buffer
	var notified []string
	h := FeedHandler(slog.New(slog.NewJSONHandler(&buf, nil)), func(id string) { notified = append(notified, id) })

	msgs := []kafka.Message{
		{Topic: "salon.reservation.created.v1", Headers: []kafka.Header{{Key: "salon_id", Value: []byte("from-header")}}, Value: []byte(`{"salon_id":"ignored"}`)},
		{Topic: "salon.settings.updated.v1", Value: []byte(`{"salon_id":"from-payload"}`)},
		{Topic: "salon.reservation.cancelled.v1", Value: []byte(`{}`)},
		{Topic: "salon.reservation.blocked.v1", Value: []byte(`not json`)},
	}
	for _, msg := range msgs {
		if err := h(context.Background(), msg); err != nil {
			t.Fatalf("handler returned %v", err)
		}
	}

	if strings.Join(notified, ",") != "from-header,from-payload" {
		t.Fatalf("unexpected notifications %v", notified)
	}
	if !strings.Contains(buf.String(), "invalid event payload") {
		t.Fatalf("expected bad payload to be logged, got %s", buf.String())
	}
}
