package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.viam.com/rdk/logging"

	plushieArm "plushie_arm"
	"plushie_arm/control"
	"plushie_arm/sim"
)

var (
	dLeft       bool
	dHeadPan    float64
	dTakeAfter  int
	dPressAfter int

	rLeft       bool
	rX, rY, rZ  float64
	rYaw        float64
	rFrame      string
	rEuler      string
	rFloor      float64
	rConsistent bool
)

func init() {
	deliverCmd.Flags().BoolVar(&dLeft, "left", false, "Use the left arm")
	deliverCmd.Flags().Float64Var(&dHeadPan, "head-pan", 0, "Detected head pan angle in radians")
	deliverCmd.Flags().IntVar(&dTakeAfter, "take-after", 30, "Tick at which the recipient takes the object (0 = never)")
	deliverCmd.Flags().IntVar(&dPressAfter, "press-after", 0, "Tick at which the override button is pressed (0 = never)")

	repositionCmd.Flags().BoolVar(&rLeft, "left", false, "Use the left hand")
	repositionCmd.Flags().Float64Var(&rX, "x", 0.4, "Target x")
	repositionCmd.Flags().Float64Var(&rY, "y", 0, "Target y")
	repositionCmd.Flags().Float64Var(&rZ, "z", 0.1, "Target z")
	repositionCmd.Flags().Float64Var(&rYaw, "yaw", 0, "Hand yaw in radians")
	repositionCmd.Flags().StringVar(&rFrame, "frame", "", "Frame the point is expressed in")
	repositionCmd.Flags().StringVar(&rEuler, "euler", "", "Euler convention: legacy or standard")
	repositionCmd.Flags().Float64Var(&rFloor, "floor", 0, "Block the hand below this height")
	repositionCmd.Flags().BoolVar(&rConsistent, "consistent", false, "Enable stall detection")
}

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Stretch toward a head, release, and return",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := &Scenario{Deliver: &DeliverScenario{
			Left:       dLeft,
			HeadPan:    dHeadPan,
			TakeAfter:  dTakeAfter,
			PressAfter: dPressAfter,
		}}
		return runScenario(cmd.Context(), cmd.OutOrStdout(), sc, newLogger())
	},
}

var repositionCmd = &cobra.Command{
	Use:   "reposition",
	Short: "Move a hand, pointing down, to a point",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := &Scenario{Reposition: &RepositionScenario{
			Left:             rLeft,
			X:                rX,
			Y:                rY,
			Z:                rZ,
			Yaw:              rYaw,
			Frame:            rFrame,
			Euler:            rEuler,
			NeedsConsistency: rConsistent,
		}}
		if cmd.Flags().Changed("floor") {
			floor := rFloor
			sc.Reposition.Floor = &floor
		}
		return runScenario(cmd.Context(), cmd.OutOrStdout(), sc, newLogger())
	},
}

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a scenario file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := loadScenario(args[0])
		if err != nil {
			return err
		}
		return runScenario(cmd.Context(), cmd.OutOrStdout(), sc, newLogger())
	},
}

// Result summarizes a finished scenario.
type Result struct {
	Ticks    int
	Outcome  string
	Detail   string
	Joints   []float64
	Commands []string
}

func runScenario(ctx context.Context, out io.Writer, sc *Scenario, logger logging.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := sc.validate(); err != nil {
		return err
	}
	limit := sc.MaxTicks
	if limit == 0 {
		limit = maxTicks
	}

	var (
		res Result
		err error
	)
	if sc.Deliver != nil {
		res, err = runDeliver(ctx, sc.Sim, *sc.Deliver, limit, logger)
	} else {
		res, err = runReposition(ctx, sc.Sim, *sc.Reposition, limit, logger)
	}
	if err != nil {
		return err
	}
	printResult(out, res)
	return nil
}

func runDeliver(ctx context.Context, cfg sim.Config, d DeliverScenario, limit int, logger logging.Logger) (Result, error) {
	arm := sim.New(cfg)
	side := control.SideFromLeft(d.Left)
	if len(d.Start) > 0 {
		arm.SetJoints(side, d.Start)
	}
	hand := sim.NewHand()
	button := &sim.Button{}

	delivery := plushieArm.NewDelivery(
		map[control.Side]plushieArm.JointLimb{
			control.Left:  arm.Limb(control.Left),
			control.Right: arm.Limb(control.Right),
		},
		map[control.Side]plushieArm.Hand{side: hand},
		map[control.Side]plushieArm.ButtonReader{side: button},
		plushieArm.DeliveryOptions{
			// the simulated clock does not advance while settling
			Sleep: func(context.Context, time.Duration) bool { return true },
			OnEvent: func(ev control.Event) {
				logger.Infof("%v %s", ev.Kind, ev.Phase)
			},
		},
		logger,
	)
	if err := delivery.Deliver(side, d.HeadPan, false); err != nil {
		return Result{}, err
	}

	for tick := 1; tick <= limit; tick++ {
		if tick == d.TakeAfter {
			hand.Take()
		}
		button.Set(tick == d.PressAfter)

		if err := delivery.Tick(ctx); err != nil {
			return Result{}, err
		}
		if st := delivery.Status(); st.Complete() {
			res := Result{
				Ticks:    tick,
				Outcome:  st.Status.String(),
				Joints:   arm.Joints(side),
				Commands: hand.Commands(),
			}
			if st.Err != nil {
				res.Detail = st.Err.Error()
			}
			return res, nil
		}
		arm.Step()
	}
	return Result{}, fmt.Errorf("delivery still in phase %q after %d ticks", delivery.Status().Phase, limit)
}

func runReposition(ctx context.Context, cfg sim.Config, r RepositionScenario, limit int, logger logging.Logger) (Result, error) {
	arm := sim.New(cfg)
	side := control.SideFromLeft(r.Left)

	euler, err := control.EulerConverterByName(r.Euler)
	if err != nil {
		return Result{}, err
	}
	start := r.Start
	if len(start) == 0 {
		down := euler.Quaternion(0, control.HandDownPitch, 0)
		start = []float64{0.3, 0, 0.3, down.X, down.Y, down.Z, down.W}
	}
	arm.SetJoints(side, start)
	if r.Floor != nil {
		arm.SetFloor(*r.Floor)
	}

	limb := arm.Limb(side)
	rep := plushieArm.NewReposition(
		map[control.Side]plushieArm.JointLimb{side: limb},
		map[control.Side]plushieArm.EndpointReader{side: limb},
		map[control.Side]plushieArm.EffortReader{side: limb},
		sim.NewIK(),
		plushieArm.RepositionOptions{Euler: euler, Frame: r.Frame},
		logger,
	)
	err = rep.Reposition(ctx, control.RepositionRequest{
		Side:             side,
		X:                r.X,
		Y:                r.Y,
		Z:                r.Z,
		Yaw:              r.Yaw,
		Frame:            r.Frame,
		NeedsConsistency: r.NeedsConsistency,
	})
	if err != nil {
		return Result{}, err
	}

	for tick := 0; tick <= limit; tick++ {
		p := rep.Progress()
		if !p.Moving() {
			res := Result{Ticks: tick, Outcome: p.State.String(), Joints: arm.Joints(side)}
			if p.Reason != control.ReasonNone {
				res.Detail = p.Reason.String()
			}
			return res, nil
		}
		if err := rep.Tick(ctx); err != nil {
			return Result{}, err
		}
		arm.Step()
	}
	return Result{}, fmt.Errorf("hand still moving after %d ticks", limit)
}

func printResult(out io.Writer, res Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "OUTCOME\t%s\n", res.Outcome)
	if res.Detail != "" {
		fmt.Fprintf(w, "DETAIL\t%s\n", res.Detail)
	}
	fmt.Fprintf(w, "TICKS\t%d\n", res.Ticks)
	fmt.Fprintf(w, "JOINTS\t%.3f\n", res.Joints)
	if len(res.Commands) > 0 {
		fmt.Fprintf(w, "GRIPPER\t%v\n", res.Commands)
	}
	w.Flush()
}
