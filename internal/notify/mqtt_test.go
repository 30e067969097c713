package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	mqtt.Token
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mqtt.Client
	token mqtt.Token
	out   []published
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.out = append(c.out, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func TestMQTTObserver_Deliver(t *testing.T) {
	client := &fakeClient{token: completedToken(nil)}
	obs := NewMQTTObserver(client, "psurops/events", 1)

	err := obs.Deliver(context.Background(), Event{Kind: EventComment, Payload: map[string]interface{}{"identifier": "TD003"}})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(client.out) != 1 {
		t.Fatalf("expected one publish, got %d", len(client.out))
	}
	if client.out[0].topic != "psurops/events/comment" || client.out[0].qos != 1 {
		t.Errorf("published to %s qos %d", client.out[0].topic, client.out[0].qos)
	}
	var e Event
	if err := json.Unmarshal(client.out[0].payload, &e); err != nil {
		t.Fatal(err)
	}
	if e.Payload["identifier"] != "TD003" {
		t.Errorf("payload = %v", e.Payload)
	}
}

func TestMQTTObserver_PublishError(t *testing.T) {
	client := &fakeClient{token: completedToken(errors.New("not connected"))}
	obs := NewMQTTObserver(client, "t", 0)
	if err := obs.Deliver(context.Background(), Event{Kind: EventAdd}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMQTTObserver_ContextDeadline(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: make(chan struct{})}}
	obs := NewMQTTObserver(client, "t", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := obs.Deliver(ctx, Event{Kind: EventAdd}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
