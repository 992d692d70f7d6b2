// internal/messaging/router.go
package messaging

import (
	"encoding/json"

	"fleet-adapter/internal/models"
	"fleet-adapter/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// FleetHandler 수신 메시지를 처리하는 fleet 인터페이스
type FleetHandler interface {
	OnFleetState(state models.FleetState)
	OnLaneClosure(req models.LaneRequest) bool
}

// Router 메시지 라우터
type Router struct {
	fleet  FleetHandler
	topics Topics
}

// NewRouter 새 메시지 라우터 생성
func NewRouter(fleet FleetHandler, topics Topics) *Router {
	return &Router{fleet: fleet, topics: topics}
}

// RouteMessage 토픽에 따라 메시지 라우팅
func (r *Router) RouteMessage(msg mqtt.Message) {
	topic := msg.Topic()

	switch topic {
	case r.topics.FleetStates():
		var state models.FleetState
		if err := json.Unmarshal(msg.Payload(), &state); err != nil {
			utils.Logger.Errorf("Failed to parse fleet state message: %v", err)
			return
		}
		r.fleet.OnFleetState(state)

	case r.topics.LaneClosureRequests():
		var req models.LaneRequest
		if err := json.Unmarshal(msg.Payload(), &req); err != nil {
			utils.Logger.Errorf("Failed to parse lane closure request: %v", err)
			return
		}
		if !r.fleet.OnLaneClosure(req) {
			utils.Logger.Debugf("Lane closure request for fleet [%s] ignored", req.FleetName)
		}

	default:
		utils.Logger.Warnf("Unhandled topic: %s", topic)
	}
}
