package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"idbcore/internal/async"
	"idbcore/internal/commandrouter"
	"idbcore/internal/session"
	"idbcore/internal/target"
	"idbcore/internal/video"
)

var (
	videoOutputPath    string
	videoEncoding      string
	videoFPS           int
	videoQuality       float64
	videoWidth         int
	videoHeight        int
	videoMode          string
	videoKeyframeEvery int
	videoTargetUDID    string
)

// videoStreamCapability is the commandrouter.Capability exposing the
// streaming session manager, so `video stream` reaches
// video.StreamSession through the same dispatch path every other
// target-bound operation does (spec §4.5).
type videoStreamCapability struct {
	mgr *session.Manager[video.StreamConfig, *video.StreamSession, video.EncoderStats]
}

func (c *videoStreamCapability) ID() commandrouter.CapabilityID { return "video.stream" }

func (c *videoStreamCapability) Start(cfg video.StreamConfig) *async.Future[*session.Session[*video.StreamSession, video.EncoderStats]] {
	return c.mgr.Start(cfg)
}

func newVideoCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "video",
		Short: "Stream and record frames from the attached target's surface",
	}
	c.AddCommand(newVideoStreamCmd())
	return c
}

func newVideoStreamCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "stream",
		Short: "Encode surface frames to a file until interrupted",
		RunE: func(c *cobra.Command, args []string) error {
			encoding, err := parseEncoding(videoEncoding)
			if err != nil {
				return err
			}
			mode, err := parseStreamMode(videoMode)
			if err != nil {
				return err
			}

			sink, err := async.NewFileConsumer(videoOutputPath, true)
			if err != nil {
				return err
			}

			cfg := video.EncoderConfig{
				Encoding:           encoding,
				CompressionQuality: videoQuality,
				KeyframeInterval:   videoKeyframeEvery,
			}
			if videoFPS > 0 {
				fps := videoFPS
				cfg.FramesPerSecond = &fps
			}

			encoder := video.NewEncoder(cfg, sink)
			generator := video.NewFrameGenerator(video.Geometry{Width: videoWidth, Height: videoHeight, RowStride: videoWidth * 4})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mgr := session.NewManager(session.ManagerConfig[video.StreamConfig, *video.StreamSession, video.EncoderStats]{
				Create: func(p video.StreamConfig) (*video.StreamSession, error) {
					streamSession := video.NewStreamSession(generator, encoder, p)
					streamSession.Start(ctx)
					return streamSession, nil
				},
				Poll:     video.StreamPoll,
				Capacity: 1,
			})
			defer mgr.Close()

			tg := target.New(videoTargetUDID, target.KindSimulator, "")
			fwd := commandrouter.NewForwarder(tg)
			fwd.Register("video.stream", true, func(*target.Target) (commandrouter.Capability, error) {
				return &videoStreamCapability{mgr: mgr}, nil
			})

			capAny, err := fwd.Dispatch("video.stream")
			if err != nil {
				return err
			}
			capability := capAny.(*videoStreamCapability)

			sess, err := capability.Start(video.StreamConfig{Mode: mode, TargetFPS: videoFPS}).Await(0)
			if err != nil {
				return err
			}

			<-ctx.Done()
			stats, err := sess.Terminate().Await(5 * time.Second)
			if err != nil {
				return err
			}

			if err := encoder.Close(); err != nil {
				return err
			}
			sink.Completed().Await(5 * time.Second)

			fmt.Fprintf(c.OutOrStdout(), "frames encoded: %d, dropped: %d\n", stats.WriteCount, stats.DropCount)
			return nil
		},
	}
	c.Flags().StringVar(&videoOutputPath, "out", "", "output file path for the encoded stream")
	c.Flags().StringVar(&videoEncoding, "encoding", "h264", "h264, bgra, mjpeg, or minicap")
	c.Flags().IntVar(&videoFPS, "fps", 30, "target frames per second (eager mode only)")
	c.Flags().Float64Var(&videoQuality, "quality", 0.8, "compression quality, 0..1 (mjpeg/minicap only)")
	c.Flags().IntVar(&videoWidth, "width", 0, "surface width in pixels")
	c.Flags().IntVar(&videoHeight, "height", 0, "surface height in pixels")
	c.Flags().StringVar(&videoMode, "mode", "lazy", "lazy or eager")
	c.Flags().IntVar(&videoKeyframeEvery, "keyframe-interval", 60, "frames between forced IDRs (h264 only)")
	c.Flags().StringVar(&videoTargetUDID, "udid", "", "UDID of the target to stream from")
	c.MarkFlagRequired("out")
	c.MarkFlagRequired("width")
	c.MarkFlagRequired("height")
	c.MarkFlagRequired("udid")
	return c
}

func parseEncoding(s string) (video.Encoding, error) {
	switch s {
	case "h264":
		return video.EncodingH264, nil
	case "bgra":
		return video.EncodingBGRA, nil
	case "mjpeg":
		return video.EncodingMJPEG, nil
	case "minicap":
		return video.EncodingMinicap, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q", s)
	}
}

func parseStreamMode(s string) (video.StreamMode, error) {
	switch s {
	case "lazy":
		return video.StreamLazy, nil
	case "eager":
		return video.StreamEagerFPS, nil
	default:
		return 0, fmt.Errorf("unknown stream mode %q", s)
	}
}
