package plushie_arm

import (
	"context"
	"fmt"
	"sync"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/generic"

	"plushie_arm/control"
)

var DeliveryModel = resource.NewModel("plushie", "arm", "delivery")

func init() {
	resource.RegisterService(
		generic.API,
		DeliveryModel,
		resource.Registration[resource.Resource, *DeliveryConfig]{
			Constructor: newDeliveryService,
		},
	)
}

type deliveryService struct {
	resource.Named
	resource.AlwaysRebuild

	logger   logging.Logger
	delivery *Delivery
	cleanup  func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newDeliveryService(ctx context.Context, deps resource.Dependencies, conf resource.Config, logger logging.Logger) (resource.Resource, error) {
	cfg, err := resource.NativeConfig[*DeliveryConfig](conf)
	if err != nil {
		return nil, err
	}

	backend, err := sideLimbs(ctx, deps, cfg.ArmLeft, cfg.ArmRight, cfg.ServoBus, defaultBusRegistry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up arms for delivery: %w", err)
	}
	limbs, hands, cleanup := backend.limbs, backend.hands, backend.cleanup

	buttons := map[control.Side]ButtonReader{}
	for side, name := range map[control.Side]string{control.Left: cfg.GripperLeft, control.Right: cfg.GripperRight} {
		if name == "" {
			continue
		}
		g, err := lookupGripper(deps, name)
		if err != nil {
			cleanup()
			return nil, err
		}
		hands[side] = &gripperHand{gripper: g}
	}
	for side, pin := range map[control.Side]string{control.Left: cfg.ButtonPinLeft, control.Right: cfg.ButtonPinRight} {
		if pin == "" {
			continue
		}
		b, err := lookupButton(deps, cfg.ButtonBoard, pin)
		if err != nil {
			cleanup()
			return nil, err
		}
		buttons[side] = b
	}

	d := NewDelivery(limbs, hands, buttons, DeliveryOptions{
		Settle:           cfg.SettleDuration(),
		ReleaseCommandID: cfg.ReleaseCommandID,
	}, logger)

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &deliveryService{
		Named:    conf.ResourceName().AsNamed(),
		logger:   logger,
		delivery: d,
		cleanup:  cleanup,
		cancel:   cancel,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		d.Run(loopCtx, pollInterval(cfg.PollHz))
	}()

	logger.Infof("delivery service ready (arms: %d, grippers: %d, buttons: %d, poll %.1f Hz)",
		len(limbs), len(hands), len(buttons), cfg.PollHz)
	return s, nil
}

func (s *deliveryService) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if err := s.delivery.Err(); err != nil {
		return nil, err
	}

	switch cmd["command"] {
	case "deliver":
		isLeft, ok := cmd["is_left"].(bool)
		if !ok {
			return nil, fmt.Errorf("deliver command requires boolean 'is_left'")
		}
		headPos, ok := cmd["head_pos"].(float64)
		if !ok {
			return nil, fmt.Errorf("deliver command requires number 'head_pos'")
		}
		force, _ := cmd["force"].(bool)

		side := control.SideFromLeft(isLeft)
		if err := s.delivery.Deliver(side, headPos, force); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"started": true,
			"side":    side.String(),
			"reach":   control.ReachPan(side, headPos),
		}, nil

	case "is_complete":
		return map[string]interface{}{"is_complete": s.delivery.Status().Complete()}, nil

	case "status":
		st := s.delivery.Status()
		resp := map[string]interface{}{
			"status":      st.Status.String(),
			"phase":       st.Phase,
			"side":        st.Side.String(),
			"is_complete": st.Complete(),
			"motion":      s.delivery.Progress().State.String(),
		}
		if st.Err != nil {
			resp["error"] = st.Err.Error()
		}
		return resp, nil

	case "press_button":
		s.delivery.PressButton()
		return map[string]interface{}{"pressed": true}, nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func (s *deliveryService) Close(ctx context.Context) error {
	s.cancel()
	s.wg.Wait()
	s.cleanup()
	return nil
}
