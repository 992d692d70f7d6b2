// internal/messaging/topics.go
package messaging

import "strings"

// 토픽 이름 (prefix 뒤에 붙는다)
const (
	TopicFleetStates         = "fleet_states"
	TopicPathRequests        = "robot_path_requests"
	TopicModeRequests        = "robot_mode_requests"
	TopicLaneClosureRequests = "lane_closure_requests"
	TopicClosedLanes         = "closed_lanes"
)

// Topics prefix가 적용된 토픽 이름 모음
type Topics struct {
	prefix string
}

func NewTopics(prefix string) Topics {
	return Topics{prefix: strings.Trim(prefix, "/")}
}

func (t Topics) name(topic string) string {
	if t.prefix == "" {
		return topic
	}
	return t.prefix + "/" + topic
}

func (t Topics) FleetStates() string         { return t.name(TopicFleetStates) }
func (t Topics) PathRequests() string        { return t.name(TopicPathRequests) }
func (t Topics) ModeRequests() string        { return t.name(TopicModeRequests) }
func (t Topics) LaneClosureRequests() string { return t.name(TopicLaneClosureRequests) }
func (t Topics) ClosedLanes() string         { return t.name(TopicClosedLanes) }
