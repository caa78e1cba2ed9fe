package mqtt

import (
	"context"
	"fmt"

	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
	pkgmqtt "github.com/lakasli/TCP-VDA5050-bridge-server/pkg/mqtt"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/mqtt/topic"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

// DownlinkQoS is the subscription QoS for order and instantActions.
const DownlinkQoS = 1

// Handler consumes decoded downlink documents. addr identifies the target
// vehicle as named by the topic.
type Handler interface {
	HandleOrder(ctx context.Context, addr topic.Address, order *vda5050.Order) error
	HandleInstantActions(ctx context.Context, addr topic.Address, actions *vda5050.InstantActions) error
}

// Server implements the MQTT ingress layer. The client is started by the
// caller; Start only waits for the link and subscribes.
type Server struct {
	client     pkgmqtt.Client
	topics     *topic.Builder
	shareGroup string
	handler    Handler
	onInvalid  func(err error)
}

// NewServer creates the ingress server. onInvalid, if set, is called for
// every publication that cannot be decoded into a downlink document.
func NewServer(client pkgmqtt.Client, builder *topic.Builder, shareGroup string, handler Handler, onInvalid func(error)) *Server {
	return &Server{
		client:     client,
		topics:     builder,
		shareGroup: shareGroup,
		handler:    handler,
		onInvalid:  onInvalid,
	}
}

// Start waits for the broker connection, subscribes to every downlink
// subtopic and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	log.Info("MQTT Connected")

	if err := s.initMQTTSubscriptions(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func (s *Server) initMQTTSubscriptions(ctx context.Context) error {
	for _, st := range []vda5050.Subtopic{vda5050.SubtopicOrder, vda5050.SubtopicInstantActions} {
		fullTopic := s.topics.Shared(s.shareGroup, st.String())
		if err := s.client.Subscribe(ctx, fullTopic, DownlinkQoS, s.Handle); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", fullTopic, err)
		}
	}
	return nil
}

// Handle decodes one publication and routes it by subtopic.
func (s *Server) Handle(ctx context.Context, name string, payload []byte) {
	if err := s.handle(ctx, name, payload); err != nil {
		log.Error(err, "Handler execution failed", "topic", name)
	}
}

func (s *Server) handle(ctx context.Context, name string, payload []byte) error {
	addr, err := s.topics.Parse(name)
	if err != nil {
		s.invalid(err)
		return err
	}
	st, ok := vda5050.ParseSubtopic(addr.Subtopic)
	if !ok || !st.Downlink() {
		err := fmt.Errorf("subtopic %q is not consumed by the bridge", addr.Subtopic)
		s.invalid(err)
		return err
	}

	msg, err := vda5050.Decode(st, payload)
	if err != nil {
		s.invalid(err)
		return err
	}

	switch doc := msg.(type) {
	case *vda5050.Order:
		return s.handler.HandleOrder(ctx, addr, doc)
	case *vda5050.InstantActions:
		return s.handler.HandleInstantActions(ctx, addr, doc)
	}
	return fmt.Errorf("no handler for %s", st)
}

func (s *Server) invalid(err error) {
	if s.onInvalid != nil {
		s.onInvalid(err)
	}
}
