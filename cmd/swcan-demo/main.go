// Command swcan-demo brings up one bit-banged CAN node from a bus-profile
// ini file, optionally bridges it onto a SocketCAN interface, and runs its
// transmit/receive poll loop.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wiredwave/swcan/pkg/bridge"
	"github.com/wiredwave/swcan/pkg/config"
	"github.com/wiredwave/swcan/pkg/gpio/periphpins"
	"github.com/wiredwave/swcan/pkg/swcan"
)

func main() {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	profilePath := flag.String("c", "swcan.ini", "bus profile ini file")
	profileName := flag.String("b", "default", "bus profile name (matches [bus.<name>])")
	socketcanIface := flag.String("i", "", "SocketCAN interface to bridge onto, e.g. vcan0 (disabled if empty)")
	sendID := flag.Int("send-id", -1, "periodically transmit a frame with this identifier (disabled if negative)")
	flag.Parse()

	profiles, err := config.LoadBusProfiles(*profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swcan-demo: %v\n", err)
		os.Exit(1)
	}
	profile, ok := profiles[*profileName]
	if !ok {
		fmt.Fprintf(os.Stderr, "swcan-demo: no [bus.%s] section in %s\n", *profileName, *profilePath)
		os.Exit(1)
	}

	clock, err := periphpins.NewClock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "swcan-demo: %v\n", err)
		os.Exit(1)
	}
	tx, err := periphpins.OpenOut(profile.TXPin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swcan-demo: %v\n", err)
		os.Exit(1)
	}
	rx, err := periphpins.OpenIn(profile.RXPin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swcan-demo: %v\n", err)
		os.Exit(1)
	}

	node := swcan.New(clock, tx, rx, log)
	if err := node.Begin(profile.Baudrate); err != nil {
		fmt.Fprintf(os.Stderr, "swcan-demo: %v\n", err)
		os.Exit(1)
	}
	log.WithFields(logrus.Fields{
		"profile":  profile.Name,
		"baudrate": profile.Baudrate,
		"tx_pin":   profile.TXPin,
		"rx_pin":   profile.RXPin,
	}).Info("swcan-demo: node configured")

	var br *bridge.Bridge
	if *socketcanIface != "" {
		br, err = bridge.Open(node, *socketcanIface, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "swcan-demo: %v\n", err)
			os.Exit(1)
		}
		go func() {
			if err := br.Connect(); err != nil {
				log.WithError(err).Warn("swcan-demo: bridge connection ended")
			}
		}()
		defer br.Close()
	}

	var lastSend time.Time
	for {
		var f swcan.Frame
		if br != nil {
			br.PumpOnce()
		} else if node.ReadFrame(&f) == swcan.MessageOk {
			log.WithFields(logrus.Fields{"id": f.ID, "dlc": f.DLC}).Debug("swcan-demo: frame received")
		}
		if *sendID >= 0 && time.Since(lastSend) > time.Second {
			node.SendFrame(swcan.Frame{ID: uint16(*sendID), DLC: 0})
			lastSend = time.Now()
		}
		if node.State() == swcan.BusOff {
			log.Warn("swcan-demo: bus-off, exiting poll loop")
			return
		}
	}
}
