package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// ScanRequest asks a worker to describe node types.
type ScanRequest struct {
	IDs []string `json:"ids"`
}

// ScanReply carries the descriptions a worker could produce. Identifiers
// it does not know are listed in Unknown.
type ScanReply struct {
	Descriptions []domain.NodeDescription `json:"descriptions"`
	Unknown      []string                 `json:"unknown,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

// Describer resolves node type descriptions; *registry.Registry satisfies it.
type Describer interface {
	Describe(identifier string) (domain.NodeDescription, error)
}

// Scan sends one request over ch and waits for the reply.
func Scan(ctx context.Context, ch ports.MessageChannel, ids []string) (*ScanReply, error) {
	req, err := json.Marshal(ScanRequest{IDs: ids})
	if err != nil {
		return nil, err
	}
	if err := ch.Send(ctx, req); err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}
	data, err := ch.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan reply: %w", err)
	}
	var reply ScanReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("malformed scan reply: %w", err)
	}
	if reply.Error != "" {
		return &reply, fmt.Errorf("worker: %s", reply.Error)
	}
	return &reply, nil
}

// Serve answers scan requests until ctx ends or the peer goes away.
// A lost peer is a normal shutdown and returns nil.
func Serve(ctx context.Context, ch ports.MessageChannel, d Describer, logger *slog.Logger) error {
	for {
		data, err := ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrChannelClosed) {
				return nil
			}
			return err
		}

		reply := answer(data, d)
		logger.Debug("scan served", "described", len(reply.Descriptions), "unknown", len(reply.Unknown))

		out, err := json.Marshal(reply)
		if err != nil {
			return err
		}
		if err := ch.Send(ctx, out); err != nil {
			return err
		}
	}
}

func answer(data []byte, d Describer) ScanReply {
	var req ScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ScanReply{Error: "malformed request: " + err.Error()}
	}
	reply := ScanReply{Descriptions: []domain.NodeDescription{}}
	for _, id := range req.IDs {
		desc, err := d.Describe(id)
		if err != nil {
			reply.Unknown = append(reply.Unknown, id)
			continue
		}
		reply.Descriptions = append(reply.Descriptions, desc)
	}
	return reply
}
