// internal/messaging/publisher.go
package messaging

import (
	"encoding/json"
	"fmt"

	"fleet-adapter/internal/models"
	"fleet-adapter/internal/utils"
)

// Publisher fleet driver로 가는 명령과 닫힌 차선 상태를 발행한다.
type Publisher struct {
	client Client
	topics Topics
}

// NewPublisher 새 발행자 생성
func NewPublisher(client Client, topics Topics) *Publisher {
	return &Publisher{client: client, topics: topics}
}

// PublishPath 경로 명령 발행
func (p *Publisher) PublishPath(req models.PathRequest) error {
	return p.publishJSON(p.topics.PathRequests(), false, req, "path request")
}

// PublishMode 모드 명령 발행
func (p *Publisher) PublishMode(req models.ModeRequest) error {
	return p.publishJSON(p.topics.ModeRequests(), false, req, "mode request")
}

// PublishClosedLanes 닫힌 차선 상태 발행 (retained: 나중에 구독한 쪽도 마지막 상태를 받는다)
func (p *Publisher) PublishClosedLanes(status models.ClosedLanes) error {
	if status.ClosedLanes == nil {
		status.ClosedLanes = []int{}
	}
	return p.publishJSON(p.topics.ClosedLanes(), true, status, "closed lanes")
}

func (p *Publisher) publishJSON(topic string, retained bool, v interface{}, kind string) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	if err := p.client.Publish(topic, 0, retained, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", kind, err)
	}
	utils.Logger.Debugf("📤 %s sent to %s", kind, topic)
	return nil
}
