//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_FieldEditedRoundTrip(t *testing.T) {
	natsURL := skipWithoutNATS(t)

	client, err := NewClient(context.Background(), natsURL, os.Getenv("NATS_TOKEN"), slog.Default())
	require.NoError(t, err)
	defer client.Close()

	received := make(chan FieldEditedEvent, 1)
	err = client.Subscribe(SubjectFieldEdited, func(_ string, data []byte) {
		var evt FieldEditedEvent
		if json.Unmarshal(data, &evt) == nil {
			received <- evt
		}
	})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	sent := FieldEditedEvent{EventID: NewEventID(), PatientID: "p-int", FieldKey: "history", Modified: "edited"}
	require.NoError(t, client.Publish(SubjectFieldEdited, sent))

	select {
	case evt := <-received:
		require.Equal(t, sent.EventID, evt.EventID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for field edited event")
	}
}
