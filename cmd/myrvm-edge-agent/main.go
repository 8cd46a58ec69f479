// The edge agent runs on the controller inside a recycling machine. It
// performs the handshake on boot and then polls the heartbeat endpoint,
// executing whatever commands the server handed back.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/commands"
	"github.com/ngajar-feri/myrvm-edge/internal/handshake"
)

var AppVersion string

var startedAt = time.Now()

func main() {
	InitConfig()

	slog.Info("RVM Edge Agent", "version", AppVersion)

	if config.Server.URL == "" || config.Device.Key == "" {
		slog.Error("server.url and device.key must be configured")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 15 * time.Second}

	result, err := doHandshake(ctx, client)
	if err != nil {
		slog.Error("Handshake failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Handshake complete",
		"device_id", result.Identity.DeviceID,
		"machine_id", result.Identity.MachineID,
		"heartbeat_interval_sec", result.Policy.HeartbeatIntervalSec)

	interval := time.Duration(result.Policy.HeartbeatIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Received shutdown signal")
			return
		case <-ticker.C:
			cmds, err := doHeartbeat(ctx, client)
			if err != nil {
				slog.Warn("Heartbeat failed", "error", err)
				continue
			}
			for _, cmd := range cmds {
				execute(cmd)
			}
		}
	}
}

func doHandshake(ctx context.Context, client *http.Client) (*handshake.Result, error) {
	hostname, _ := os.Hostname()
	body := map[string]any{
		"device_identity": map[string]any{
			"name":   config.Device.Name,
			"serial": config.Device.Serial,
		},
		"reported_system": map[string]any{"hostname": hostname},
		"reported_state":  reportedState(),
	}

	var result handshake.Result
	if err := postJSON(ctx, client, "/api/v1/edge/handshake", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func doHeartbeat(ctx context.Context, client *http.Client) ([]commands.Command, error) {
	body := map[string]any{"reported_state": reportedState()}

	var resp dto.HeartbeatResponse
	if err := postJSON(ctx, client, "/api/v1/edge/heartbeat", body, &resp); err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

func reportedState() map[string]any {
	return map[string]any{
		"uptime_seconds": int64(time.Since(startedAt).Seconds()),
	}
}

func postJSON(ctx context.Context, client *http.Client, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		config.Server.URL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Key", config.Device.Key)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

func execute(cmd commands.Command) {
	slog.Info("Executing command", "command_id", cmd.ID, "action", cmd.Action)

	switch cmd.Action {
	case commands.ActionRestart:
		slog.Info("Restart requested, exiting for supervisor to relaunch")
		os.Exit(0)
	default:
		// Hardware-facing actions are dispatched to the controller's
		// local runtime; without one we only acknowledge them.
		slog.Info("Command acknowledged", "action", cmd.Action, "payload", cmd.Payload)
	}
}
