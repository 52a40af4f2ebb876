package kafka

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ecociel/escalator/domain"
	"github.com/twmb/franz-go/pkg/kgo"
)

const DefaultTopic = "work-items.escalated"

const HeaderCycleID = "cycle_id"
const HeaderEscalationLevel = "escalation_level"

// Producer defines the interface for producing messages to Kafka
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Publisher struct {
	client Producer
	topic  string
}

func NewPublisher(client Producer, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: client, topic: topic}
}

// Event is the record value of an escalation.
type Event struct {
	ID              string    `json:"id"`
	EscalationLevel int       `json:"escalationLevel"`
	EscalatedAt     time.Time `json:"escalatedAt"`
	CycleID         string    `json:"cycleId"`
}

// PublishEscalated produces one record per escalation in a single
// ProduceSync call.
func (p *Publisher) PublishEscalated(ctx context.Context, cycleID string, escalations []domain.Escalation) []error {
	var (
		errs    []error
		records = make([]*kgo.Record, 0, len(escalations))
		index   = make(map[*kgo.Record]int, len(escalations))
	)
	fail := func(i int, err error) {
		if errs == nil {
			errs = make([]error, len(escalations))
		}
		errs[i] = err
	}

	for i, e := range escalations {
		record, err := p.escalationToRec(cycleID, e)
		if err != nil {
			fail(i, err)
			continue
		}
		records = append(records, record)
		index[record] = i
	}
	if len(records) == 0 {
		return errs
	}

	// Results arrive in completion order, so they are matched by record.
	for _, res := range p.client.ProduceSync(ctx, records...) {
		if res.Err == nil {
			continue
		}
		i, ok := index[res.Record]
		if !ok {
			continue
		}
		fail(i, fmt.Errorf("publish escalation of %s: %w", escalations[i].ID, res.Err))
	}
	return errs
}

func (p *Publisher) escalationToRec(cycleID string, e domain.Escalation) (*kgo.Record, error) {
	value, err := json.Marshal(Event{
		ID:              e.ID,
		EscalationLevel: e.Level,
		EscalatedAt:     e.EscalatedAt,
		CycleID:         cycleID,
	})
	if err != nil {
		return nil, fmt.Errorf("serialize escalation of %s: %w", e.ID, err)
	}
	level := binary.BigEndian.AppendUint32(nil, uint32(e.Level))
	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(e.ID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderCycleID, Value: []byte(cycleID)},
			{Key: HeaderEscalationLevel, Value: level},
		},
	}, nil
}

// Nop drops events. Used when no brokers are configured.
type Nop struct{}

func (Nop) PublishEscalated(context.Context, string, []domain.Escalation) []error {
	return nil
}
