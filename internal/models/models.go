package models

import "time"

// Customer is a registered party allowed to talk to the assistant
type Customer struct {
	ID         string     `json:"id" yaml:"id"`
	Phone      string     `json:"phone" yaml:"phone"`
	Email      string     `json:"email" yaml:"email"`
	Name       string     `json:"name" yaml:"name"`
	Active     bool       `json:"active" yaml:"active"`
	Profession string     `json:"profession,omitempty" yaml:"profession"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty" yaml:"-"`
}

// ConversationThread links a customer to its assistant thread
type ConversationThread struct {
	CustomerID   string    `json:"customer_id"`
	ThreadID     string    `json:"thread_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
	MessageCount int       `json:"message_count"`
	ResetCount   int       `json:"reset_count"`
}

// InboundMessage is the part of a webhook payload the pipeline acts on
type InboundMessage struct {
	Phone      string
	Text       string
	MessageID  string
	SenderName string
	InstanceID string
	ReceivedAt time.Time
}

// AssistantResponse is the normalized assistant output
type AssistantResponse struct {
	Reply              string  `json:"reply"`
	IdentifiedCourseID *string `json:"identified_course_id"`
	PsychologyTopic    *string `json:"psychology_topic"`
	OutOfScope         bool    `json:"out_of_scope"`
}

// InteractionLog is the audit record written for every processed message
type InteractionLog struct {
	ID                string            `json:"id"`
	CustomerID        string            `json:"customer_id"`
	Phone             string            `json:"phone"`
	MessageID         string            `json:"message_id"`
	InstanceID        string            `json:"instance_id"`
	InputText         string            `json:"input_text"`
	OutputText        string            `json:"output_text"`
	ThreadID          string            `json:"thread_id,omitempty"`
	RunOutcome        string            `json:"run_outcome"`
	Fallback          bool              `json:"fallback"`
	Delivered         bool              `json:"delivered"`
	DeliveryError     string            `json:"delivery_error,omitempty"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	Response          AssistantResponse `json:"response"`
	ReceivedAt        time.Time         `json:"received_at"`
	CreatedAt         time.Time         `json:"created_at"`
}
