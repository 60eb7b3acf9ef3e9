package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/croftja/treebus/address"
	"github.com/croftja/treebus/node"
	"github.com/croftja/treebus/transport/local"
)

func newDemoCommand() *cobra.Command {
	var configPath string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run two peers through the in-process router",
		Long: `demo binds a calculator node and a client node behind separate router
sessions, then drives a cross-session call and a cross-session event
between them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultDemoConfig()
			if configPath != "" {
				loaded, err := loadDemoConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runDemo(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a demo topology TOML file")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall demo deadline")
	return cmd
}

// calculator is the serving peer: one summing call, one change signal.
type calculator struct{}

func (calculator) Describe() node.Endpoints {
	return node.Endpoints{
		Calls: []node.CallSpec{{
			Name: "sum",
			Func: func(ctx context.Context, args []any) (any, error) {
				total := 0
				for _, a := range args {
					n, ok := a.(int)
					if !ok {
						return nil, fmt.Errorf("sum takes ints, got %T", a)
					}
					total += n
				}
				return total, nil
			},
		}},
		Signals: []node.SignalSpec{{Name: "changed"}},
	}
}

func runDemo(ctx context.Context, cfg demoConfig) error {
	run := uuid.NewString()
	logger := log.With().Str("run", run).Logger()
	logger.Info().Str("realm", cfg.Realm).Msg("starting demo topology")

	base, err := address.New(cfg.Realm)
	if err != nil {
		return fmt.Errorf("realm: %w", err)
	}
	router := local.NewRouter()

	service := node.For(calculator{})
	mgrService := node.NewManager(node.ManagerConfig{
		Transport: router.Session(cfg.ServiceSession),
	})
	if err := service.Bind(ctx, cfg.ServiceName,
		mgrService.NewContext(node.WithPathBase(base)), nil); err != nil {
		return fmt.Errorf("bind %s: %w", cfg.ServiceName, err)
	}
	defer service.Unbind(context.Background())

	client := node.New(node.Endpoints{})
	mgrClient := node.NewManager(node.ManagerConfig{
		Transport: router.Session(cfg.ClientSession),
	})
	if err := client.Bind(ctx, cfg.ClientName,
		mgrClient.NewContext(node.WithPathBase(base)), nil); err != nil {
		return fmt.Errorf("bind %s: %w", cfg.ClientName, err)
	}
	defer client.Unbind(context.Background())

	// cross-session event: the client watches the calculator's signal
	events := make(chan any, 1)
	signalAddr := fmt.Sprintf("@%s.changed", cfg.ServiceName)
	if err := client.Connect(signalAddr, "on-changed",
		func(ctx context.Context, args []any) (any, error) {
			if len(args) > 0 {
				select {
				case events <- args[0]:
				default:
				}
			}
			return nil, nil
		}); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	// cross-session call
	callArgs := make([]any, len(cfg.Addends))
	for i, n := range cfg.Addends {
		callArgs[i] = n
	}
	callAddr := fmt.Sprintf("@%s.sum", cfg.ServiceName)
	pending, err := client.Call(ctx, callAddr, callArgs...)
	if err != nil {
		return fmt.Errorf("call %s: %w", callAddr, err)
	}
	sum, err := pending.One(ctx)
	if err != nil {
		return fmt.Errorf("await %s: %w", callAddr, err)
	}
	logger.Info().Any("addends", cfg.Addends).Any("sum", sum).Msg("call answered")
	fmt.Printf("%v = %v\n", cfg.Addends, sum)

	notified, err := service.Notify(ctx, "changed", cfg.Payload)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if _, err := notified.Wait(ctx); err != nil {
		return fmt.Errorf("await event delivery: %w", err)
	}
	select {
	case payload := <-events:
		logger.Info().Any("payload", payload).Msg("event observed")
		fmt.Printf("changed: %v\n", payload)
	case <-ctx.Done():
		return fmt.Errorf("await event: %w", ctx.Err())
	}
	return nil
}
