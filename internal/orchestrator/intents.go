package orchestrator

import (
	"context"
	"fmt"

	"github.com/lexiqai/session-assistant/internal/bus"
	"github.com/lexiqai/session-assistant/internal/domain"
)

// HandleIntent executes one session control intent and returns the response payload.
// Failures of the intent itself are reported inside the payload; the error is only set
// for messages that are not intents.
func (o *Orchestrator) HandleIntent(ctx context.Context, msg bus.Message) (any, error) {
	switch msg.Type {
	case bus.TypeStartSession:
		req, err := bus.Decode[bus.StartSessionRequest](msg)
		if err != nil {
			return bus.StartSessionResponse{Error: err.Error()}, nil
		}
		platform := domain.Platform(req.Platform)
		if platform == "" {
			platform = domain.DetectPlatform(req.URL)
		}
		id, err := o.Start(ctx, SessionConfig{Platform: platform, Language: req.Language})
		if err != nil {
			return bus.StartSessionResponse{Error: err.Error()}, nil
		}
		return bus.StartSessionResponse{Success: true, SessionID: id}, nil

	case bus.TypeStopSession:
		req, err := bus.Decode[bus.StopSessionRequest](msg)
		if err != nil {
			return bus.StopSessionResponse{Error: err.Error()}, nil
		}
		report, err := o.Stop(ctx, req.Notes)
		if err != nil {
			return bus.StopSessionResponse{Error: err.Error()}, nil
		}
		return bus.StopSessionResponse{Success: true, FinalReport: report}, nil

	case bus.TypeGetStatus:
		return o.Status(), nil
	}
	return nil, fmt.Errorf("%w: %q is not an intent", bus.ErrUnknownMessageType, msg.Type)
}

// Attach subscribes the orchestrator to intents on b. Each answer is delivered on b as
// a RESPONSE carrying the request id of the intent.
func (o *Orchestrator) Attach(b *bus.Bus) (*bus.Subscription, error) {
	handler := func(ctx context.Context, msg bus.Message) error {
		payload, err := o.HandleIntent(ctx, msg)
		if err != nil {
			return err
		}
		resp, err := bus.NewMessage(bus.TypeResponse, payload)
		if err != nil {
			return err
		}
		resp.RequestID = msg.RequestID
		b.Deliver(resp)
		return nil
	}

	handlers := bus.HandlerMap{}
	for _, t := range bus.Intents {
		handlers[t] = handler
	}
	return b.Subscribe("orchestrator", handlers)
}
