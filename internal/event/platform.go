package event

import (
	"time"

	"github.com/google/uuid"
)

// PausePlatform halts bet placement and market creation globally
// (admin only).
type PausePlatform struct {
	CommandID  uuid.UUID
	Caller     uuid.UUID
	CommandSeq int64
	Timestamp  time.Time
}

func (c *PausePlatform) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *PausePlatform) EventType() EventType {
	return EventTypePlatformPause
}

func (c *PausePlatform) MarketID() *string {
	return nil
}

func (c *PausePlatform) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *PausePlatform) EventTimestamp() time.Time {
	return c.Timestamp
}

// UnpausePlatform lifts a global pause (admin only).
type UnpausePlatform struct {
	CommandID  uuid.UUID
	Caller     uuid.UUID
	CommandSeq int64
	Timestamp  time.Time
}

func (c *UnpausePlatform) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *UnpausePlatform) EventType() EventType {
	return EventTypePlatformUnpause
}

func (c *UnpausePlatform) MarketID() *string {
	return nil
}

func (c *UnpausePlatform) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *UnpausePlatform) EventTimestamp() time.Time {
	return c.Timestamp
}

// UpdatePlatform changes global parameters (admin only). Nil fields
// are left unchanged.
type UpdatePlatform struct {
	CommandID uuid.UUID
	Caller    uuid.UUID

	DefaultFeeBps *int32
	DisputeBond   *int64
	Treasury      *uuid.UUID

	CommandSeq int64
	Timestamp  time.Time
}

func (c *UpdatePlatform) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *UpdatePlatform) EventType() EventType {
	return EventTypePlatformUpdate
}

func (c *UpdatePlatform) MarketID() *string {
	return nil
}

func (c *UpdatePlatform) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *UpdatePlatform) EventTimestamp() time.Time {
	return c.Timestamp
}
