package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/matheus3301/wpp-bridge/internal/config"
	"github.com/matheus3301/wpp-bridge/internal/daemon"
	"github.com/matheus3301/wpp-bridge/internal/lock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type statusReport struct {
	Session   string `json:"session"`
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
	InboxID   int64  `json:"inbox_id,omitempty"`
	Since     string `json:"since,omitempty"`
	WhatsApp  string `json:"whatsapp"`
	HealthErr string `json:"health_error,omitempty"`
}

func main() {
	sessionFlag := flag.String("session", "", "session directory (default: SESSION_PATH or the inbox default)")
	inboxFlag := flag.Int64("inbox", 0, "Chatwoot inbox id used to derive the default session directory")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	_ = godotenv.Load()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	sessionPath, err := resolveSession(*sessionFlag, *inboxFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		os.Exit(cmdStatus(ctx, sessionPath, *jsonFlag))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: bridgectl [--session <dir> | --inbox <id>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status           Show daemon and WhatsApp connection status")
}

func resolveSession(flagPath string, inboxID int64) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if p := os.Getenv("SESSION_PATH"); p != "" {
		return p, nil
	}
	if inboxID == 0 {
		raw := os.Getenv("CHATWOOT_INBOX_ID")
		if raw == "" {
			return "", errors.New("no session: pass --session or --inbox, or set SESSION_PATH or CHATWOOT_INBOX_ID")
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", fmt.Errorf("parse CHATWOOT_INBOX_ID: %w", err)
		}
		inboxID = id
	}
	return config.DefaultSessionPath(inboxID), nil
}

// cmdStatus exits 0 only when the daemon reports WhatsApp as connected.
func cmdStatus(ctx context.Context, sessionPath string, jsonOut bool) int {
	report := statusReport{Session: sessionPath, WhatsApp: "UNKNOWN"}

	holder, err := lock.Inspect(sessionPath)
	switch {
	case err == nil:
		report.Running = true
		report.PID = holder.PID
		report.InboxID = holder.InboxID
		report.Since = holder.Acquired.Format(time.RFC3339)
	case !errors.Is(err, fs.ErrNotExist):
		fmt.Fprintf(os.Stderr, "warning: read lock: %v\n", err)
	}

	code := 1
	if report.Running {
		st, err := checkHealth(ctx, config.SocketPath(sessionPath))
		if err != nil {
			report.HealthErr = err.Error()
		} else {
			report.WhatsApp = healthLabel(st)
			if st == healthpb.HealthCheckResponse_SERVING {
				code = 0
			}
		}
	}

	if jsonOut {
		outputJSON(report)
		return code
	}
	fmt.Printf("Session:  %s\n", report.Session)
	if !report.Running {
		fmt.Println("Daemon:   not running")
		return code
	}
	fmt.Printf("Daemon:   running (PID %d, inbox %d, since %s)\n", report.PID, report.InboxID, report.Since)
	fmt.Printf("WhatsApp: %s\n", report.WhatsApp)
	if report.HealthErr != "" {
		fmt.Printf("Health:   %s\n", report.HealthErr)
	}
	return code
}

func checkHealth(ctx context.Context, socketPath string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.HealthService})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}

func healthLabel(st healthpb.HealthCheckResponse_ServingStatus) string {
	if st == healthpb.HealthCheckResponse_SERVING {
		return "connected"
	}
	return "not connected"
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
