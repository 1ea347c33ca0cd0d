// Command missionmanager runs the vehicle-side mission transfer
// endpoint: it owns the persisted mission/fence/rally lists and the
// IDLE/SENDLIST/GETLIST state machine, and exposes a read-only status
// feed for operator tooling (spec §1, §11). The MAVLink framing and
// transport are an external collaborator (spec §1): this binary wires
// everything dispatch needs but never touches raw bytes itself.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tiiuae/mission-microservice/internal/config"
	"github.com/tiiuae/mission-microservice/internal/dataman"
	"github.com/tiiuae/mission-microservice/internal/debugserver"
	"github.com/tiiuae/mission-microservice/internal/mavmission"
	"github.com/tiiuae/mission-microservice/internal/missionproto"
	"github.com/tiiuae/mission-microservice/internal/progress"
	"github.com/tiiuae/mission-microservice/internal/registry"
	"github.com/tiiuae/mission-microservice/internal/relay"
)

var (
	defaultFlagSet  = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	configPath      = defaultFlagSet.String("config", "", "Path to the YAML configuration file")
	deviceID        = defaultFlagSet.String("device_id", "", "The provisioned device id")
	mqttBrokerAddr  = defaultFlagSet.String("mqtt_broker", "", "MQTT broker protocol, address and port")
	databasePath    = defaultFlagSet.String("database_path", "", "Path to the mission sqlite database")
	verbose         = defaultFlagSet.Bool("verbose", false, "Enable verbose logging")
)

// tickInterval drives both the protocol endpoint's timeout/retry
// bookkeeping and the progress publisher's rate limiter.
const tickInterval = 20 * time.Millisecond

func main() {
	if err := defaultFlagSet.Parse(os.Args[1:]); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load(*configPath, defaultFlagSet)
	if err != nil {
		log.Fatal(err)
	}
	if *databasePath != "" {
		cfg.DatabasePath = *databasePath
	}

	terminationSignals := make(chan os.Signal, 1)
	signal.Notify(terminationSignals, syscall.SIGINT, syscall.SIGTERM)
	ctx, quitFunc := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	store, err := dataman.Open(dataman.Config{Path: cfg.DatabasePath})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	reg := registry.New()
	sender := &notConnectedSender{verbose: cfg.Verbose}
	endpoint := missionproto.New("primary", cfg.SysID, cfg.CompID, sender, store, reg, cfg)
	publisher := progress.New(sender, reg, endpoint, cfg.ProgressRateInterval)

	runTicker(ctx, &wg, endpoint, publisher)

	if cfg.DebugServerAddr != "" {
		startDebugServer(ctx, &wg, cfg, endpoint, reg)
	}

	var mqttClient mqtt.Client
	if cfg.MQTTBrokerAddress != "" {
		mqttClient = relay.NewClient(cfg.MQTTBrokerAddress, "missionmanager-"+cfg.DeviceID)
		if err := relay.Connect(ctx, mqttClient); err != nil {
			log.Printf("relay: connect failed, continuing without cloud relay: %v", err)
		} else {
			r := relay.New(mqttClient, cfg.DeviceID, cfg.Verbose)
			r.Start(ctx, &wg)
			endpoint.OnEvent(func(kind string, t mavmission.MissionType, count uint16, detail string) {
				r.Publish(relay.Event{MissionType: t.String(), Kind: kind, ItemCount: count, Detail: detail})
			})
		}
	}

	log.Printf("missionmanager started: sysid=%d compid=%d db=%s", cfg.SysID, cfg.CompID, cfg.DatabasePath)

	<-terminationSignals
	log.Printf("Shutting down..")
	quitFunc()
	log.Printf("Waiting for routines to finish..")
	wg.Wait()
	log.Printf("Signing off - BYE")
}

func runTicker(ctx context.Context, wg *sync.WaitGroup, endpoint *missionproto.Endpoint, publisher *progress.Publisher) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				endpoint.Tick(now)
				publisher.Tick(now)
			}
		}
	}()
}

func startDebugServer(ctx context.Context, wg *sync.WaitGroup, cfg config.Config, endpoint *missionproto.Endpoint, reg *registry.Registry) {
	srv := debugserver.New(cfg.DebugServerAddr, 500*time.Millisecond, func() debugserver.Status {
		return debugserver.Status{
			Timestamp:       time.Now(),
			Channel:         "primary",
			State:           endpoint.State().String(),
			ActiveDatamanID: reg.ActiveDatamanID(),
			ListCounts: map[string]uint16{
				mavmission.TypeMission.String(): reg.Count(mavmission.TypeMission),
				mavmission.TypeFence.String():   reg.Count(mavmission.TypeFence),
				mavmission.TypeRally.String():   reg.Count(mavmission.TypeRally),
			},
			CurrentSeq:  reg.CurrentSeq(),
			LastReached: reg.LastReached(),
			InTransfer:  reg.InTransfer(),
		}
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx); err != nil {
			log.Printf("debugserver: %v", err)
		}
	}()
}

// notConnectedSender logs every outbound call instead of writing wire
// bytes, standing in for the external transport/codec collaborator
// (spec §1) until one is attached.
type notConnectedSender struct {
	verbose bool
}

func (s *notConnectedSender) SendCount(sysid, compid uint8, count uint16, t mavmission.MissionType) {
	s.logf("SendCount sys=%d comp=%d count=%d type=%s", sysid, compid, count, t)
}

func (s *notConnectedSender) SendRequest(sysid, compid uint8, seq uint16, t mavmission.MissionType, intMode bool) {
	s.logf("SendRequest sys=%d comp=%d seq=%d type=%s int=%v", sysid, compid, seq, t, intMode)
}

func (s *notConnectedSender) SendItem(sysid, compid uint8, item mavmission.ItemMsg) {
	s.logf("SendItem sys=%d comp=%d seq=%d cmd=%d", sysid, compid, item.Seq, item.Command)
}

func (s *notConnectedSender) SendAck(sysid, compid uint8, status mavmission.AckStatus, t mavmission.MissionType) {
	s.logf("SendAck sys=%d comp=%d status=%s type=%s", sysid, compid, status, t)
}

func (s *notConnectedSender) SendCurrent(seq uint16) {
	s.logf("SendCurrent seq=%d", seq)
}

func (s *notConnectedSender) SendItemReached(seq uint16) {
	s.logf("SendItemReached seq=%d", seq)
}

func (s *notConnectedSender) SendStatusText(critical bool, text string) {
	log.Printf("statustext (critical=%v): %s", critical, text)
}

func (s *notConnectedSender) logf(format string, args ...interface{}) {
	if s.verbose {
		log.Printf(format, args...)
	}
}
