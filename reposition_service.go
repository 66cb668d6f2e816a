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

var RepositionModel = resource.NewModel("plushie", "arm", "reposition-hand")

func init() {
	resource.RegisterService(
		generic.API,
		RepositionModel,
		resource.Registration[resource.Resource, *RepositionConfig]{
			Constructor: newRepositionService,
		},
	)
}

type repositionService struct {
	resource.Named
	resource.AlwaysRebuild

	logger     logging.Logger
	reposition *Reposition
	cleanup    func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRepositionService(ctx context.Context, deps resource.Dependencies, conf resource.Config, logger logging.Logger) (resource.Resource, error) {
	cfg, err := resource.NativeConfig[*RepositionConfig](conf)
	if err != nil {
		return nil, err
	}

	backend, err := sideLimbs(ctx, deps, cfg.ArmLeft, cfg.ArmRight, nil, defaultBusRegistry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up arms for reposition-hand: %w", err)
	}
	limbs, endpoints, cleanup := backend.limbs, backend.endpoints, backend.cleanup

	solver, err := lookupIKService(deps, cfg.IKService)
	if err != nil {
		cleanup()
		return nil, err
	}

	efforts := map[control.Side]EffortReader{}
	if cfg.EffortSensor != "" {
		sens, err := lookupSensor(deps, cfg.EffortSensor)
		if err != nil {
			cleanup()
			return nil, err
		}
		for side := range limbs {
			efforts[side] = &sensorEffort{sensor: sens, joint: control.EffortJoint(side)}
		}
	} else {
		logger.Warn("no effort_sensor configured; stall detection will never fire")
	}

	euler, err := control.EulerConverterByName(cfg.Euler)
	if err != nil {
		cleanup()
		return nil, err
	}

	r := NewReposition(limbs, endpoints, efforts, solver, RepositionOptions{
		Stall: cfg.StallPolicy(),
		Euler: euler,
		Frame: cfg.Frame,
	}, logger)

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &repositionService{
		Named:      conf.ResourceName().AsNamed(),
		logger:     logger,
		reposition: r,
		cleanup:    cleanup,
		cancel:     cancel,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		r.Run(loopCtx, pollInterval(cfg.PollHz))
	}()
	return s, nil
}

func (s *repositionService) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if err := s.reposition.Err(); err != nil {
		return nil, err
	}

	switch cmd["command"] {
	case "reposition":
		req, err := parseRepositionRequest(cmd)
		if err != nil {
			return nil, err
		}
		if err := s.reposition.Reposition(ctx, req); err != nil {
			return nil, err
		}
		return progressResponse(s.reposition.Progress()), nil

	case "progress":
		return progressResponse(s.reposition.Progress()), nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func parseRepositionRequest(cmd map[string]interface{}) (control.RepositionRequest, error) {
	isLeft, ok := cmd["is_left"].(bool)
	if !ok {
		return control.RepositionRequest{}, fmt.Errorf("reposition command requires boolean 'is_left'")
	}
	req := control.RepositionRequest{Side: control.SideFromLeft(isLeft)}
	for key, dst := range map[string]*float64{"x": &req.X, "y": &req.Y, "z": &req.Z} {
		v, ok := cmd[key].(float64)
		if !ok {
			return control.RepositionRequest{}, fmt.Errorf("reposition command requires number '%s'", key)
		}
		*dst = v
	}
	req.Yaw, _ = cmd["yaw"].(float64)
	req.Frame, _ = cmd["frame"].(string)
	req.NeedsConsistency, _ = cmd["needs_consistency"].(bool)
	return req, nil
}

func progressResponse(p control.Progress) map[string]interface{} {
	resp := map[string]interface{}{
		"is_complete": p.Complete(),
		"is_stuck":    p.Stuck(),
		"state":       p.State.String(),
	}
	if p.Reason != control.ReasonNone {
		resp["reason"] = p.Reason.String()
	}
	return resp
}

func (s *repositionService) Close(ctx context.Context) error {
	s.cancel()
	s.wg.Wait()
	s.cleanup()
	return nil
}
