package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"neonlane.ai/internal/protocol"
)

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name = flag.String("name", "bot", "pilot name")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PilotName:       *name,
		Capabilities: protocol.HelloCapabilities{
			MaxQueue: 8,
			Objects:  true,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var pilot autopilot
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			pilot.lanes = w.RunParams.Lanes
			logger.Printf("WELCOME session=%s run=%s tick_rate=%d seed=%d", w.SessionID, w.RunID, w.RunParams.TickRateHz, w.RunParams.Seed)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("ERROR code=%s ref=%d %s", e.Code, e.Ref, e.Message)
			if e.Code == protocol.ErrRunBusy {
				return
			}

		case protocol.TypeFrame:
			var f protocol.FrameMsg
			if err := json.Unmarshal(msg, &f); err != nil {
				continue
			}
			for _, in := range pilot.decide(f) {
				if err := conn.WriteJSON(in); err != nil {
					return
				}
			}
			if f.Tick%600 == 0 {
				logger.Printf("tick=%d distance=%.0f %s %s %s", f.Tick, f.Distance, f.HUD.Text.Lattice, f.HUD.Text.Combo, f.HUD.Text.Integrity)
			}
		}
	}
}
