package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/irc-conntrack/internal/client"
	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/services"
	"github.com/benmeehan/irc-conntrack/pkg/file"
	"github.com/benmeehan/irc-conntrack/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newAPIClient(opts *ctlOptions) (*client.Client, error) {
	return client.New(opts.url)
}

func requestContext(cmd *cobra.Command, opts *ctlOptions) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, opts.timeout)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCtlList(cmd *cobra.Command, opts *ctlOptions, names []string) error {
	c, err := newAPIClient(opts)
	if err != nil {
		return err
	}

	statuses := make([]constants.ConnectionStatus, 0, len(names))
	for _, name := range names {
		status, ok := constants.ParseConnectionStatus(name)
		if !ok {
			return fmt.Errorf("unknown status %q", name)
		}
		statuses = append(statuses, status)
	}

	ctx, cancel := requestContext(cmd, opts)
	defer cancel()
	conns, err := c.List(ctx, statuses...)
	if err != nil {
		return err
	}
	return printJSON(cmd, conns)
}

func runCtlStatus(cmd *cobra.Command, opts *ctlOptions, id string) error {
	c, err := newAPIClient(opts)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(cmd, opts)
	defer cancel()
	conn, err := c.Status(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(cmd, conn)
}

func runCtlRegister(cmd *cobra.Command, opts *ctlOptions, id string) error {
	c, err := newAPIClient(opts)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(cmd, opts)
	defer cancel()

	if id == "" {
		generated, err := c.RegisterGenerated(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), generated)
		return err
	}

	conn, err := c.Register(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(cmd, conn)
}

func runCtlEvict(cmd *cobra.Command, opts *ctlOptions, id string) error {
	c, err := newAPIClient(opts)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(cmd, opts)
	defer cancel()
	return c.Evict(ctx, id)
}

func runCtlHealth(cmd *cobra.Command, opts *ctlOptions) error {
	c, err := newAPIClient(opts)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(cmd, opts)
	defer cancel()
	report, err := c.Health(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, report)
}

func runCtlConfig(cmd *cobra.Command, opts *ctlOptions, reload bool) error {
	c, err := newAPIClient(opts)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(cmd, opts)
	defer cancel()

	fetch := c.Config
	if reload {
		fetch = c.ReloadConfig
	}
	doc, err := fetch(ctx)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(doc)
	return err
}

func runCtlBeat(cmd *cobra.Command, opts *ctlOptions, beat *beatOptions, id string) error {
	logger := newLogger(cmd.ErrOrStderr(), "info", true)

	var sink services.HeartbeatSink
	if beat.broker != "" {
		mqttClient := mqtt.NewMqttService(file.NewFileService(), logger)
		err := mqttClient.Initialize(mqtt.Options{
			Broker:   beat.broker,
			ClientID: constants.DefaultClientID + "-ctl-" + uuid.NewString(),
		})
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", beat.broker, err)
		}
		defer mqttClient.Disconnect(constants.DisconnectQuiesce)
		sink = &services.MQTTSink{Topic: beat.topic, QOS: beat.qos, Client: mqttClient}
	} else {
		c, err := newAPIClient(opts)
		if err != nil {
			return err
		}
		sink = c
	}

	sender := services.NewHeartbeatService(id, beat.interval, opts.timeout, sink, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if beat.interval <= 0 {
		return sender.SendOnce(ctx)
	}

	if err := sender.Start(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return sender.Stop()
}
