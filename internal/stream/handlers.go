package stream

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"backend-fleettrack/internal/location"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// LatestFunc serves the request-location reply; location.Service.Latest
// matches.
type LatestFunc func(ctx context.Context, tripID string) (*location.Ping, error)

// IngestFunc persists a driver-reported ping arriving over the socket;
// location.Service.Ingest matches. Ingestion does its own rebroadcast.
type IngestFunc func(ctx context.Context, in location.PingInput) (location.Ping, error)

type clientMessage struct {
	Event     string     `json:"event"`
	BusNumber string     `json:"bus_number"`
	TripID    string     `json:"trip_id"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Timestamp *time.Time `json:"timestamp"`
}

type serverMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func RegisterRoutes(r fiber.Router, hub *Hub, latest LatestFunc, ingest IngestFunc) {
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		client := hub.Register()
		defer hub.Unregister(client)

		// Every viewer sees every ping until it narrows itself to a bus.
		hub.Subscribe(client, TopicFleet)
		narrowed := false

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}
			var msg clientMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}

			switch msg.Event {
			case "subscribe-to-bus":
				if msg.BusNumber == "" {
					continue
				}
				if !narrowed {
					hub.Unsubscribe(client, TopicFleet)
					narrowed = true
				}
				hub.Subscribe(client, BusTopic(msg.BusNumber))

			case "request-location":
				if latest == nil || msg.TripID == "" {
					continue
				}
				ping, err := latest(context.Background(), msg.TripID)
				if err != nil {
					log.Printf("stream: request-location for trip %s: %v", msg.TripID, err)
					continue
				}
				reply, _ := json.Marshal(serverMessage{Event: "location-update", Data: ping})
				select {
				case client.Send <- reply:
				default:
				}

			case "location-update":
				if ingest == nil {
					continue
				}
				_, err := ingest(context.Background(), location.PingInput{
					TripID:    msg.TripID,
					Latitude:  msg.Latitude,
					Longitude: msg.Longitude,
					Timestamp: msg.Timestamp,
				})
				if err != nil {
					// The relay never fails; a bad or undurable ping is
					// logged and the connection stays up.
					log.Printf("stream: socket ingest for trip %s: %v", msg.TripID, err)
				}
			}
		}
		<-done
	}))
}
