package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"fieldrelay/internal/config"
	"fieldrelay/internal/geofence"
	"fieldrelay/internal/gpio"
	"fieldrelay/internal/gps"
	"fieldrelay/internal/nmea"
	"fieldrelay/internal/relay"
	"fieldrelay/internal/telemetry"
	"fieldrelay/internal/web"
	"fieldrelay/internal/wifi"
)

type liveRuntime struct {
	cfg config.Config

	gpsSvc  *gps.Service
	relay   *relay.Relay
	sinks   telemetry.Multi
	tcp     *telemetry.TCP
	alarm   *relay.DailyAlarm
	watcher *gpio.Watcher
	power   *gpio.Output
	wifi    *wifi.Client
	fixes   *web.FixBroadcaster

	sinkNames []string
}

func newRuntime(cfg config.Config) (*liveRuntime, error) {
	rt := &liveRuntime{cfg: cfg, fixes: web.NewFixBroadcaster()}

	sinks, tcp, err := buildSinks(cfg)
	if err != nil {
		return nil, err
	}
	rt.sinks, rt.tcp = sinks, tcp
	for _, s := range sinks {
		rt.sinkNames = append(rt.sinkNames, s.Name())
	}

	fence, err := buildFence(cfg.Geofence)
	if err != nil {
		rt.Close()
		return nil, err
	}

	gpsCfg, err := gpsConfig(cfg.GPS)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if cfg.GPS.PowerPin != 0 {
		out, err := gpio.OpenOutput(cfg.GPS.Chip, cfg.GPS.PowerPin, "fieldrelay-gps")
		if err != nil {
			// Keep running with the receiver always powered.
			log.Printf("gps power pin init failed: %v", err)
		} else {
			rt.power = out
			gpsCfg.Power = out
		}
	}
	rt.gpsSvc = gps.New(gpsCfg)

	rt.relay, err = relay.New(relay.Config{
		MinInterval: cfg.Relay.MinInterval,
		Burst:       cfg.Relay.Burst,
		UTCOffset:   cfg.Relay.UTCOffset,
		Sink:        sinks,
		Fence:       fence,
		Power:       rt.gpsSvc,
		OnFix:       rt.fixes.Publish,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	if cfg.Triggers.DailyReport != "" {
		h, m, err := config.ParseClock(cfg.Triggers.DailyReport)
		if err != nil {
			rt.Close()
			return nil, err
		}
		r := rt.relay
		rt.alarm, err = relay.NewDailyAlarm(h, m, cfg.Relay.UTCOffset, nil, func() { r.Raise(telemetry.TriggerAlarm) })
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("daily alarm: %w", err)
		}
	}
	return rt, nil
}

// Start brings up inputs and services. Hardware that fails to initialise is
// logged and left out; the relay keeps running with what is available.
func (rt *liveRuntime) Start(ctx context.Context, logs *web.LogBuffer) error {
	if rt.cfg.WiFi.Enable {
		rt.wifi = wifi.NewClient(rt.cfg.WiFi.Interface)
		// Network sinks dial lazily, so association can finish in the background.
		go func() {
			if err := rt.wifi.Connect(rt.cfg.WiFi.SSID, rt.cfg.WiFi.Password); err != nil {
				log.Printf("wifi connect failed: %v", err)
				return
			}
			log.Printf("wifi connected ssid=%s iface=%s", rt.cfg.WiFi.SSID, rt.cfg.WiFi.Interface)
		}()
	}

	if rt.cfg.Triggers.PanicPin != 0 || rt.cfg.Triggers.DoorPin != 0 {
		w, err := gpio.Open(gpio.Config{
			Chip:     rt.cfg.Triggers.Chip,
			PanicPin: rt.cfg.Triggers.PanicPin,
			DoorPin:  rt.cfg.Triggers.DoorPin,
			Debounce: rt.cfg.Triggers.Debounce,
		})
		if err != nil {
			log.Printf("trigger inputs init failed: %v", err)
		} else {
			rt.watcher = w
		}
	}

	if err := rt.gpsSvc.Start(ctx); err != nil {
		log.Printf("gps init failed: %v", err)
	}

	var events <-chan gpio.Event
	if rt.watcher != nil {
		events = rt.watcher.Events()
	}
	go func() {
		if err := rt.relay.Run(ctx, rt.gpsSvc.Fixes(), events); err != nil && ctx.Err() == nil {
			log.Printf("relay stopped: %v", err)
		}
	}()

	if rt.alarm != nil {
		rt.alarm.Start()
		if next, err := rt.alarm.NextRun(); err == nil && !next.IsZero() {
			log.Printf("daily alarm next=%s", next.Format(time.RFC3339))
		}
	}

	if rt.cfg.Web.Enable {
		go func() {
			if err := web.Serve(ctx, rt.cfg.Web.Listen, web.Handler(rt.status(), rt.fixes, logs)); err != nil && ctx.Err() == nil {
				log.Printf("web server stopped: %v", err)
			}
		}()
		log.Printf("web listen=%s", rt.cfg.Web.Listen)
	}
	return nil
}

func (rt *liveRuntime) status() *web.Status {
	st := web.NewStatus()
	st.SetSinks(rt.sinkNames)
	st.SetGPS(rt.gpsSvc.Snapshot)
	st.SetRelay(rt.relay.Snapshot)
	if rt.tcp != nil {
		st.SetTCP(rt.tcp.Snapshot)
	}
	if rt.alarm != nil {
		st.SetAlarm(rt.alarm.NextRun)
	}
	if rt.wifi != nil {
		st.SetWiFi(rt.wifi.Status)
	}
	return st
}

func (rt *liveRuntime) Close() {
	if rt.alarm != nil {
		_ = rt.alarm.Close()
	}
	if rt.watcher != nil {
		_ = rt.watcher.Close()
	}
	if rt.gpsSvc != nil {
		rt.gpsSvc.Close()
	}
	if rt.power != nil {
		_ = rt.power.Close()
	}
	if err := rt.sinks.Close(); err != nil {
		log.Printf("sink close: %v", err)
	}
}

// gpsCommands is the receiver setup sequence: raw init commands first, then
// the output selection and update rate.
func gpsCommands(g config.GPSConfig) ([]nmea.Command, error) {
	var cmds []nmea.Command
	for _, c := range g.InitCommands {
		cmds = append(cmds, nmea.Command(c))
	}
	out, err := nmea.SetOutput(g.Output...)
	if err != nil {
		return nil, err
	}
	cmds = append(cmds, out)
	if g.UpdateRate != 0 {
		rate, err := nmea.SetUpdateInterval(g.UpdateRate)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, rate)
	}
	return cmds, nil
}

func gpsConfig(g config.GPSConfig) (gps.Config, error) {
	mode, err := nmea.ParseGGAMode(g.GGAMode)
	if err != nil {
		return gps.Config{}, err
	}
	cmds, err := gpsCommands(g)
	if err != nil {
		return gps.Config{}, err
	}
	return gps.Config{
		Enable:       g.Enable,
		Source:       g.Source,
		GPSDAddr:     g.GPSDAddr,
		Device:       g.Device,
		Baud:         g.Baud,
		MaxLineBytes: g.MaxLineBytes,
		Framer: nmea.FramerConfig{
			IdleTimeout:     g.IdleTimeout,
			SentenceTimeout: g.SentenceTimeout,
		},
		GGAMode:  mode,
		Commands: cmds,
	}, nil
}

func buildFence(g config.GeofenceConfig) (*geofence.Fence, error) {
	if !g.Enable {
		return nil, nil
	}
	return geofence.New(geofence.Bounds{MinLat: g.MinLat, MaxLat: g.MaxLat, MinLon: g.MinLon, MaxLon: g.MaxLon}, g.HomeLat, g.HomeLon)
}

// openLoRa is replaced in tests; the real one needs the modem attached.
var openLoRa = func(cfg telemetry.LoRaConfig) (telemetry.Sink, error) {
	l, err := telemetry.OpenLoRa(cfg)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// buildSinks opens every enabled uplink. A sink that fails to open is
// logged and skipped; having none at all is an error.
func buildSinks(cfg config.Config) (telemetry.Multi, *telemetry.TCP, error) {
	var sinks telemetry.Multi
	var tcp *telemetry.TCP

	if cfg.LoRa.Enable {
		l, err := openLoRa(telemetry.LoRaConfig{
			Device:  cfg.LoRa.Device,
			Baud:    cfg.LoRa.Baud,
			Port:    cfg.LoRa.Port,
			Timeout: cfg.LoRa.Timeout,
		})
		if err != nil {
			log.Printf("lora init failed: %v", err)
		} else {
			sinks = append(sinks, l)
		}
	}
	if cfg.TCP.Enable {
		c, err := telemetry.NewTCP(telemetry.TCPConfig{Addr: cfg.TCP.Addr, ReconnectDelay: cfg.TCP.ReconnectDelay})
		if err != nil {
			_ = sinks.Close()
			return nil, nil, err
		}
		sinks = append(sinks, c)
		tcp = c
	}
	if cfg.MQTT.Enable {
		m, err := telemetry.NewMQTT(telemetry.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		})
		if err != nil {
			log.Printf("mqtt init failed: %v", err)
		} else {
			sinks = append(sinks, m)
		}
	}
	if cfg.UDP.Enable {
		u, err := telemetry.NewUDP(cfg.UDP.Dest)
		if err != nil {
			log.Printf("udp init failed: %v", err)
		} else {
			sinks = append(sinks, u)
		}
	}

	if len(sinks) == 0 {
		return nil, nil, telemetry.ErrNoSinks
	}
	return sinks, tcp, nil
}
