package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/trackwire"
	"github.com/loykin/trackwire/internal/collector"
	"github.com/loykin/trackwire/internal/event"
	"github.com/loykin/trackwire/internal/storage"
	sfactory "github.com/loykin/trackwire/internal/storage/factory"
)

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	root := &cobra.Command{
		Use:           "trackwire",
		Short:         "trackwire is a durable telemetry event-delivery agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.ConfigPath, "config", "", "path to TOML config file")

	root.AddCommand(newTrackCmd(gf))
	root.AddCommand(newFlushCmd(gf))
	root.AddCommand(newStatusCmd(gf))
	root.AddCommand(newCollectorCmd(gf))
	return root
}

func loadConfig(gf *GlobalFlags) (trackwire.Config, error) {
	if gf.ConfigPath == "" {
		return trackwire.DefaultConfig(), nil
	}
	c, err := trackwire.LoadConfig(gf.ConfigPath)
	if err != nil {
		return trackwire.Config{}, err
	}
	return *c, nil
}

func newTrackCmd(gf *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track <event> [key=value ...]",
		Short: "Capture one event and flush the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(gf)
			if err != nil {
				return err
			}
			eng, err := trackwire.New(conf)
			if err != nil {
				return err
			}
			props := parseProps(args[1:])
			eng.Track(args[0], props)
			eng.Flush(trackwire.FlushOptions{})

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := eng.Close(ctx); err != nil {
				return fmt.Errorf("close: %w", err)
			}
			if n := eng.QueueLen(); n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "event queued; %d record(s) pending for next run\n", n)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "event delivered")
			return nil
		},
	}
	return cmd
}

func newFlushCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Drain the persisted queue once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(gf)
			if err != nil {
				return err
			}
			eng, err := trackwire.New(conf)
			if err != nil {
				return err
			}
			pending := eng.QueueLen()
			eng.Flush(trackwire.FlushOptions{})

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := eng.Close(ctx); err != nil {
				return fmt.Errorf("close: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flushed; %d pending before, %d pending after\n", pending, eng.QueueLen())
			return nil
		},
	}
}

func newStatusCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show persisted identity and queue depth without touching them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(gf)
			if err != nil {
				return err
			}
			st, err := sfactory.NewFromDSN(conf.StateDSN)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			userID, _, _ := st.Get(storage.KeyUserID)
			if userID == "" {
				userID = "(none)"
			}
			pending := 0
			if raw, ok, _ := st.Get(storage.KeyQueueSnapshot); ok && raw != "" {
				if records, err := event.DecodeSnapshot([]byte(raw)); err == nil {
					pending = len(records)
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user id:  %s\n", userID)
			fmt.Fprintf(out, "pending:  %d\n", pending)
			fmt.Fprintf(out, "base url: %s\n", conf.BaseURL())
			return nil
		},
	}
}

func newCollectorCmd(gf *GlobalFlags) *cobra.Command {
	cf := &CollectorFlags{}
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Run the local development collector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := collector.NewDatabase(cf.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if cf.MetricsAddr != "" {
				if err := trackwire.RegisterMetricsDefault(); err != nil {
					return err
				}
				go func() { _ = trackwire.ServeMetrics(cf.MetricsAddr) }()
			}

			srv := collector.NewServer(cf.Addr, db, nil)
			fmt.Fprintf(cmd.OutOrStdout(), "collector listening on %s (db: %s)\n", cf.Addr, cf.DBPath)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&cf.Addr, "addr", "127.0.0.1:4000", "listen address")
	cmd.Flags().StringVar(&cf.DBPath, "db", "trackwire-collector.db", "sqlite database path")
	cmd.Flags().StringVar(&cf.MetricsAddr, "metrics-addr", "", "optional prometheus /metrics listen address")
	return cmd
}

// parseProps turns key=value args into event properties. JSON-looking
// values (numbers, booleans, objects) are decoded, everything else stays
// a string.
func parseProps(args []string) trackwire.Properties {
	if len(args) == 0 {
		return nil
	}
	props := make(trackwire.Properties, len(args))
	for _, kv := range args {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			props[kv] = true
			continue
		}
		k, v := kv[:i], kv[i+1:]
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			props[k] = decoded
		} else {
			props[k] = v
		}
	}
	return props
}
