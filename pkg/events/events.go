// Package events carries real-time security events from the serving layer
// to websocket subscribers.
package events

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Severity buckets for pushed events.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Event is a single security event pushed to dashboard clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	IP        string    `json:"ip"`
	User      string    `json:"user"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}

// New builds an event stamped with the current UTC time.
func New(eventType, ip, user, severity, message string) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		IP:        ip,
		User:      user,
		Severity:  severity,
		Message:   message,
	}
}

// Simulator fabricates demo security events with fake source addresses and
// usernames.
type Simulator struct {
	faker *gofakeit.Faker
}

// NewSimulator returns a Simulator; pass a non-zero seed for reproducible
// event streams.
func NewSimulator(seed uint64) *Simulator {
	return &Simulator{faker: gofakeit.New(seed)}
}

// FailedLogin simulates a burst of failed login attempts.
func (s *Simulator) FailedLogin() Event {
	return New(
		"failed_login",
		s.faker.IPv4Address(),
		s.faker.Username(),
		SeverityMedium,
		"Multiple failed login attempts detected",
	)
}

// BruteForce simulates an ongoing credential brute-force attack.
func (s *Simulator) BruteForce() Event {
	return New(
		"brute_force",
		s.faker.IPv4Address(),
		s.faker.Username(),
		SeverityHigh,
		"Credential brute-force attack in progress",
	)
}

// Exfiltration simulates a large outbound data transfer.
func (s *Simulator) Exfiltration() Event {
	return New(
		"data_exfiltration",
		s.faker.IPv4Address(),
		s.faker.Username(),
		SeverityHigh,
		"Unusually large outbound transfer detected",
	)
}
