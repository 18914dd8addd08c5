package cmd

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"idbcore/internal/hid"
)

var (
	hidTransportAddr string
	hidScreenWidth   float64
	hidScreenHeight  float64
	hidScreenScale   float64
)

func newHIDCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "hid",
		Short: "Inject synthetic touch, button, and keyboard events into the attached target",
	}
	c.PersistentFlags().StringVar(&hidTransportAddr, "transport-addr", "", "unix socket address of the on-target daemon")
	c.MarkPersistentFlagRequired("transport-addr")
	c.AddCommand(newHIDTapCmd())
	c.AddCommand(newHIDButtonCmd())
	c.AddCommand(newHIDKeyCmd())
	return c
}

func newHIDTapCmd() *cobra.Command {
	var x, y float64
	var up bool
	c := &cobra.Command{
		Use:   "tap",
		Short: "Send a single touch-down (or touch-up) event at pixel coordinates",
		RunE: func(c *cobra.Command, args []string) error {
			direction := hid.DirectionDown
			if up {
				direction = hid.DirectionUp
			}
			return sendHIDEvent(hid.TouchEvent{
				Direction:    direction,
				ScreenWidth:  hidScreenWidth,
				ScreenHeight: hidScreenHeight,
				ScreenScale:  hidScreenScale,
				X:            x,
				Y:            y,
			})
		},
	}
	c.Flags().Float64Var(&x, "x", 0, "touch x coordinate in pixels")
	c.Flags().Float64Var(&y, "y", 0, "touch y coordinate in pixels")
	c.Flags().BoolVar(&up, "up", false, "send a touch-up rather than touch-down event")
	c.Flags().Float64Var(&hidScreenWidth, "screen-width", 0, "screen width in pixels")
	c.Flags().Float64Var(&hidScreenHeight, "screen-height", 0, "screen height in pixels")
	c.Flags().Float64Var(&hidScreenScale, "screen-scale", 1, "screen scale factor")
	c.MarkFlagRequired("screen-width")
	c.MarkFlagRequired("screen-height")
	return c
}

func newHIDButtonCmd() *cobra.Command {
	var buttonName string
	var up bool
	c := &cobra.Command{
		Use:   "button",
		Short: "Press or release a hardware button (home, lock, side, siri, apple-pay)",
		RunE: func(c *cobra.Command, args []string) error {
			button, err := parseHIDButton(buttonName)
			if err != nil {
				return err
			}
			direction := hid.DirectionDown
			if up {
				direction = hid.DirectionUp
			}
			return sendHIDEvent(hid.ButtonEvent{Direction: direction, Button: button})
		},
	}
	c.Flags().StringVar(&buttonName, "name", "", "home, lock, side, siri, or apple-pay")
	c.Flags().BoolVar(&up, "up", false, "send a release rather than a press")
	c.MarkFlagRequired("name")
	return c
}

func newHIDKeyCmd() *cobra.Command {
	var keyCode uint32
	var up bool
	c := &cobra.Command{
		Use:   "key",
		Short: "Press or release a single HID-usage-table keycode",
		RunE: func(c *cobra.Command, args []string) error {
			direction := hid.DirectionDown
			if up {
				direction = hid.DirectionUp
			}
			return sendHIDEvent(hid.KeyboardEvent{Direction: direction, KeyCode: keyCode})
		},
	}
	c.Flags().Uint32Var(&keyCode, "code", 0, "HID usage-table keycode")
	c.Flags().BoolVar(&up, "up", false, "send a release rather than a press")
	c.MarkFlagRequired("code")
	return c
}

func parseHIDButton(s string) (hid.Button, error) {
	switch s {
	case "apple-pay":
		return hid.ButtonApplePay, nil
	case "home":
		return hid.ButtonHomeButton, nil
	case "lock":
		return hid.ButtonLock, nil
	case "side":
		return hid.ButtonSideButton, nil
	case "siri":
		return hid.ButtonSiri, nil
	default:
		return 0, fmt.Errorf("unknown button %q", s)
	}
}

func sendHIDEvent(e hid.Event) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(context.Background(), "unix", hidTransportAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write(hid.Encode(e))
	return err
}
