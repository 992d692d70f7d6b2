// internal/messaging/subscriber.go
package messaging

import (
	"fmt"

	"fleet-adapter/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscriber MQTT 구독 관리자
type Subscriber struct {
	client Client
	router *Router
	topics Topics
}

// NewSubscriber 새 구독자 생성
func NewSubscriber(client Client, router *Router, topics Topics) *Subscriber {
	utils.Logger.Infof("🏗️ CREATING MQTT Subscriber")
	return &Subscriber{
		client: client,
		router: router,
		topics: topics,
	}
}

// SubscribeAll 모든 필요한 토픽 구독
func (s *Subscriber) SubscribeAll() error {
	utils.Logger.Infof("🔔 STARTING All Subscriptions")

	subscriptions := []struct {
		topic       string
		description string
	}{
		{
			topic:       s.topics.FleetStates(),
			description: "Fleet States",
		},
		{
			topic:       s.topics.LaneClosureRequests(),
			description: "Lane Closure Requests",
		},
	}

	for _, sub := range subscriptions {
		utils.Logger.Infof("🔔 SUBSCRIBING TO: %s (%s)", sub.topic, sub.description)

		if err := s.client.Subscribe(sub.topic, 0, s.handleMessage); err != nil {
			utils.Logger.Errorf("❌ SUBSCRIPTION FAILED: %s - %v", sub.topic, err)
			return fmt.Errorf("failed to subscribe to %s: %w", sub.topic, err)
		}
	}

	utils.Logger.Infof("🎉 ALL SUBSCRIPTIONS COMPLETED")
	return nil
}

// handleMessage 수신된 메시지를 라우터에 전달
func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	utils.Logger.Debugf("📨 MESSAGE RECEIVED Topic: %s (%d bytes)", msg.Topic(), len(msg.Payload()))
	s.router.RouteMessage(msg)
}
