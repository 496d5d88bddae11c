package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/config"
	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/rtc"
	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/sigclient"
	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/signaling"
	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/ui"
)

var (
	callConsultationID string
	callUserType       string
	callServerURL      string
	callSTUNServers    string
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Join a consultation as a headless participant",
	Long: `Joins a consultation room as a synthetic participant and drives the full
negotiation through the relay: useful for smoke-testing a deployment or
standing in for the far side during development. Audio is a generated tone;
video is negotiated but dark.`,
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVarP(&callConsultationID, "consultation", "c", "", "consultation ID to join (required)")
	callCmd.Flags().StringVarP(&callUserType, "as", "a", signaling.UserTypePatient, "participant role: patient or doctor")
	callCmd.Flags().StringVarP(&callServerURL, "server", "s", "", "relay websocket URL")
	callCmd.Flags().StringVar(&callSTUNServers, "stun", "", "comma-separated STUN server URLs")
	callCmd.MarkFlagRequired("consultation")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	if callUserType != signaling.UserTypePatient && callUserType != signaling.UserTypeDoctor {
		return fmt.Errorf("--as must be %q or %q", signaling.UserTypePatient, signaling.UserTypeDoctor)
	}

	cfg, err := config.Load(config.Options{
		ServerURL:   callServerURL,
		STUNServers: callSTUNServers,
	})
	if err != nil {
		return err
	}

	ctrl := rtc.NewController(rtc.Config{
		ConsultationID: callConsultationID,
		UserType:       callUserType,
		ICEServers:     []webrtc.ICEServer{{URLs: cfg.STUNServers}},
		Device:         &rtc.SyntheticDevice{},
		Dial: func(ctx context.Context) (rtc.Signaler, error) {
			client := sigclient.NewClient(cfg.ServerURL)
			if err := client.Connect(); err != nil {
				return nil, err
			}
			handler := sigclient.NewHandler(client)
			go handler.Start()
			return handler, nil
		},
	})

	spin := ui.NewConnectionSpinner("Connecting to " + cfg.ServerURL + " ...")
	spin.Start()
	if err := ctrl.Start(cmd.Context()); err != nil {
		spin.Error(err.Error())
		var cerr *rtc.CallError
		if errors.As(err, &cerr) {
			ui.PrintWarning(cerr.UserMessage())
		}
		return err
	}
	spin.Success("Joined consultation " + callConsultationID + " as " + callUserType)

	if ctrl.Snapshot().AudioOnly {
		ui.PrintWarning("Camera unavailable. Audio-only mode enabled.")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	wait := ui.NewWaitingSpinner("Waiting for the other participant ...")
	wait.Start()
	waiting := true

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := ctrl.Snapshot()
	for {
		select {
		case <-sig:
			if waiting {
				wait.Stop()
			}
			ui.PrintInfo("Ending call")
			ctrl.Close()
			<-ctrl.Done()
			return nil

		case <-ctrl.Done():
			if waiting {
				wait.Stop()
			}
			snap := ctrl.Snapshot()
			if snap.Err != nil {
				ui.PrintError(snap.Err.Error())
				return snap.Err
			}
			ui.PrintSuccess("Call ended")
			return nil

		case <-ticker.C:
			snap := ctrl.Snapshot()
			if waiting && snap.State != rtc.StateAwaitingPeer {
				wait.Stop()
				waiting = false
			}
			if !waiting && snap.State == rtc.StateAwaitingPeer && last.State != rtc.StateAwaitingPeer {
				ui.PrintInfo("Peer left, waiting again")
				wait = ui.NewWaitingSpinner("Waiting for the other participant ...")
				wait.Start()
				waiting = true
			}
			if snap.State != last.State {
				ui.PrintInfof("%s %s  quality: %s", ui.IconCall, snap.State, ui.QualityBadge(snap.Quality))
			} else if snap.Quality != last.Quality {
				ui.PrintInfof("quality: %s", ui.QualityBadge(snap.Quality))
			}
			last = snap
		}
	}
}
