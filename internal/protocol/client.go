package protocol

import (
	"context"
	"fmt"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/codec"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/transport"
)

// Client encodes protocol messages onto a transport.
type Client struct {
	t     transport.Transport
	codec codec.Codec
}

func NewClient(t transport.Transport, c codec.Codec) *Client {
	if c == nil {
		c = codec.JSON{}
	}
	return &Client{t: t, codec: c}
}

func (c *Client) Codec() codec.Codec { return c.codec }

// Transport returns the underlying bus, used for subscriptions.
func (c *Client) Transport() transport.Transport { return c.t }

func (c *Client) publish(ctx context.Context, subject string, v any) error {
	data, err := c.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	if err := c.t.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// PublishSnapshot reports a machine's full state to the edge device.
func (c *Client) PublishSnapshot(ctx context.Context, m models.Machine) error {
	return c.publish(ctx, SubjectMachines, m)
}

func (c *Client) AssignJob(ctx context.Context, machineID string, job models.Job) error {
	return c.publish(ctx, CommandJob.Subject(machineID), job)
}

func (c *Client) SetRemainTime(ctx context.Context, machineID string, remainTime int) error {
	return c.publish(ctx, CommandRemainTime.Subject(machineID), RemainTime{RemainTime: remainTime})
}

func (c *Client) Repair(ctx context.Context, machineID string, repairTime int) error {
	return c.publish(ctx, CommandRepair.Subject(machineID), Repair{RemainingRepairTime: repairTime})
}

// FinishJob acknowledges a completed job so the machine can return to RUNNABLE.
func (c *Client) FinishJob(ctx context.Context, machineID string, job models.Job) error {
	return c.publish(ctx, CommandFinishedJob.Subject(machineID), job)
}
