package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"safescan-platform/internal/calls"
	"safescan-platform/internal/peer"
	"safescan-platform/pkg/logger"

	"github.com/pion/webrtc/v4"
)

// The agent is a headless owner-side client: it keeps one callee-role call
// attempt armed against the relay, answers the first inbound offer with a
// silent audio track, and re-arms when the call ends. It exists so an
// owner can be reachable without a browser tab open.
func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "API base URL")
		token     = flag.String("token", "", "owner access token (empty connects as guest)")
		useTurn   = flag.Bool("turn", true, "fetch TURN credentials from the server")
	)
	flag.Parse()

	log := logger.New(os.Getenv("APP_ENV"), "agent")
	slog.SetDefault(log)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	iceServers := []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	if *useTurn {
		turn, err := fetchTurnServer(rootCtx, *serverURL)
		if err != nil {
			log.Warn("turn credentials unavailable, continuing with stun only", "err", err)
		} else {
			iceServers = append(iceServers, turn)
		}
	}

	log.Info("agent started", "server", *serverURL)

	for {
		if rootCtx.Err() != nil {
			return
		}
		if err := runOnce(rootCtx, *serverURL, *token, iceServers, log); err != nil {
			log.Warn("call attempt ended with error", "err", err)
			// Back off before re-arming so a dead relay is not hammered.
			select {
			case <-time.After(5 * time.Second):
			case <-rootCtx.Done():
				return
			}
		}
	}
}

// runOnce arms one callee attempt and blocks until it finishes or the
// process is told to stop.
func runOnce(ctx context.Context, serverURL, token string, iceServers []webrtc.ICEServer, log *slog.Logger) error {
	pc, err := peer.NewPionConnection(iceServers)
	if err != nil {
		return fmt.Errorf("peer connection: %w", err)
	}

	sig := peer.NewWSSignaler(wsURL(serverURL), token, log)

	call := peer.NewCall(peer.Config{
		Role:   calls.RoleCallee,
		Conn:   pc,
		Signal: sig,
		Media:  peer.SilentAudioSource{},
		Logger: log,
		OnState: func(s peer.State) {
			log.Info("call state", "state", string(s))
		},
	})

	if err := call.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		call.Hangup()
		<-call.Done()
		return nil
	case <-call.Done():
		if f := call.Failure(); f != nil {
			return f
		}
		return nil
	}
}

func wsURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	default:
		return serverURL
	}
}

func fetchTurnServer(ctx context.Context, serverURL string) (webrtc.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/api/turn/credentials", nil)
	if err != nil {
		return webrtc.ICEServer{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return webrtc.ICEServer{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return webrtc.ICEServer{}, fmt.Errorf("turn credentials: status %d", resp.StatusCode)
	}

	var body struct {
		URLs       []string `json:"urls"`
		Username   string   `json:"username"`
		Credential string   `json:"credential"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return webrtc.ICEServer{}, err
	}
	return webrtc.ICEServer{
		URLs:       body.URLs,
		Username:   body.Username,
		Credential: body.Credential,
	}, nil
}
