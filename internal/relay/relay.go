// Package relay forwards mission transfer lifecycle events to a
// cloud-facing MQTT broker, the same ambient observability channel the
// teacher's telemetry package pushes vehicle state over (spec §11).
// Unlike the teacher's GCP Cloud IoT Core client, no JWT/TLS client
// auth is wired up here: this service's Non-goals exclude the
// transport/auth layer, so Relay expects a broker that does its own
// authentication upstream (e.g. a local mosquitto bridge).
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	qos    = 1
	retain = false
)

// Event is a single mission lifecycle event relayed to the cloud.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	MessageID   string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	MissionType string    `json:"mission_type"`
	Kind        string    `json:"kind"` // "upload-complete", "download-complete", "download-rejected", "aborted", "cleared"
	ItemCount   uint16    `json:"item_count"`
	Detail      string    `json:"detail,omitempty"`
}

// Relay publishes Events to MQTT, best-effort and without buffering,
// matching spec §7's "never blocks the protocol state machine".
type Relay struct {
	client   mqtt.Client
	deviceID string
	verbose  bool
}

// NewClient builds a plain MQTT client against brokerAddress without
// connecting it (Connect does that), and without the GCP-specific JWT
// signing (see package doc).
func NewClient(brokerAddress, clientID string) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerAddress).
		SetClientID(clientID).
		SetProtocolVersion(4)

	client := mqtt.NewClient(opts)
	return client
}

// Connect blocks until the MQTT connection succeeds, retrying after each
// 5s connect timeout until ctx is done. A connect attempt that fails with
// an error is returned at once, without a retry.
func Connect(ctx context.Context, client mqtt.Client) error {
	for {
		tok := client.Connect()
		if !tok.WaitTimeout(5 * time.Second) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				log.Printf("relay: mqtt connect timeout, retrying")
				continue
			}
		}
		if err := tok.Error(); err != nil {
			return errors.WithMessage(err, "relay: mqtt connect")
		}
		return nil
	}
}

// New returns a Relay that publishes under /devices/<deviceID>/events/mission.
func New(client mqtt.Client, deviceID string, verbose bool) *Relay {
	return &Relay{client: client, deviceID: deviceID, verbose: verbose}
}

// Publish marshals and sends ev. Best-effort: a publish failure is
// never retried, and is logged only when verbose is set.
func (r *Relay) Publish(ev Event) {
	ev.Timestamp = time.Now()
	ev.MessageID = uuid.New().String()
	ev.DeviceID = r.deviceID

	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("relay: marshal event: %v", err)
		return
	}

	topic := fmt.Sprintf("/devices/%s/events/mission", r.deviceID)
	tok := r.client.Publish(topic, qos, retain, b)
	if r.verbose {
		go func() {
			tok.Wait()
			if err := tok.Error(); err != nil {
				log.Printf("relay: publish failed: %v", err)
			}
		}()
	}
}

// Start runs the disconnect-on-cancel goroutine; callers that need
// in-order delivery should call Publish synchronously instead.
func (r *Relay) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		r.client.Disconnect(1000)
	}()
}
