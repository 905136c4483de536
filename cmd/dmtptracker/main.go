// OpenDMTP tracker daemon.
//
// Samples a GPS receiver, evaluates motion/geozone/odometer rules over
// the fix stream, and ships the resulting events to a remote server
// over the configured transport.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/uincore/opendmtp-sub000/internal/obslog"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/gps"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/mainloop"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/transport"
)

func main() {
	flags := pflag.NewFlagSet("dmtptracker", pflag.ExitOnError)
	flags.String("props", "props.conf", "property file path")
	flags.String("zones", "", "geozone file path")
	flags.String("gps-device", "", "GPS receiver serial device (empty: no live GPS)")
	flags.Int("gps-baud", 4800, "GPS receiver baud rate")
	flags.String("transport", "socket", "transport media: file|socket|serial|gprs")
	flags.String("host", "", "server host (socket/gprs)")
	flags.Int("port", 31000, "server port (socket/gprs)")
	flags.String("file", "events.dmtp", "output path (file transport)")
	flags.String("serial-device", "", "server serial device (serial transport)")
	flags.Int("serial-baud", 115200, "server serial baud rate")
	flags.String("modem-device", "", "modem device (gprs transport)")
	flags.String("apn", "", "APN (gprs transport)")
	flags.String("upload-dir", "", "enable server file uploads into this directory")
	flags.String("log-level", "info", "log level: debug|info|warn|error")
	_ = flags.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("DMTP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	level, err := log.ParseLevel(v.GetString("log-level"))
	if err != nil {
		level = log.InfoLevel
	}
	obslog.SetLevel(level)
	logger := obslog.For("main")

	if err := run(v, logger); err != nil {
		logger.Fatal("tracker exited", "err", err)
	}
}

func run(v *viper.Viper, logger *log.Logger) error {
	props := property.New(property.DefaultDefs())
	propsPath := v.GetString("props")
	if err := props.Load(propsPath); err != nil {
		logger.Warn("property file not loaded, using defaults", "path", propsPath, "err", err)
		propsPath = "" // re-validated by NewCore; avoid failing there too
	}

	tr, err := buildTransport(v, props)
	if err != nil {
		return err
	}
	opts := []dmtp.Option{dmtp.WithTransport(tr)}
	if propsPath != "" {
		opts = append(opts, dmtp.WithPropertyFile(propsPath))
	}
	if zones := v.GetString("zones"); zones != "" {
		opts = append(opts, dmtp.WithGeozoneFile(zones))
	}
	core, err := dmtp.NewCore(opts...)
	if err != nil {
		return err
	}
	if dir := v.GetString("upload-dir"); dir != "" {
		core.Drivers[0].EnableUpload(dir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dev := v.GetString("gps-device")
	baud := v.GetInt("gps-baud")
	if dev == "" {
		dev, _ = core.Props.GetString(property.PropCfgGPSPort, "")
		if bps, err := core.Props.GetUint32At(property.PropCfgGPSBps, 0, 4800); err == nil && bps > 0 {
			baud = int(bps)
		}
	}
	if dev != "" {
		startGPSReader(ctx, core.Loop, core.Acquisition, dev, baud, logger)
	} else {
		logger.Warn("no GPS device configured; running without live fixes")
	}

	logger.Info("tracker started", "transport", v.GetString("transport"), "version", dmtp.Version)
	err = core.Loop.Run(ctx)
	if err == context.Canceled {
		logger.Info("tracker stopped")
		return nil
	}
	return err
}

// startGPSReader spawns the comport reader task and wires the
// watchdog restart hook to reopen it.
func startGPSReader(ctx context.Context, loop *mainloop.Loop, acq *gps.Acquisition, device string, baud int, logger *log.Logger) {
	restart := make(chan struct{}, 1)
	loop.RestartGPS = func() {
		select {
		case restart <- struct{}{}:
		default:
		}
	}
	go func() {
		for {
			port, err := gps.OpenComport(device, baud)
			if err != nil {
				logger.Error("GPS comport open failed", "device", device, "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			} else {
				reader := gps.NewReader(port, acq, loop.Now)
				done := make(chan struct{})
				go func() {
					if err := reader.Run(); err != nil {
						logger.Error("GPS reader stopped", "err", err)
					}
					close(done)
				}()
				select {
				case <-ctx.Done():
					port.Close()
					return
				case <-restart:
					port.Close()
					<-done
				case <-done:
				}
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
}

func buildTransport(v *viper.Viper, props *property.Store) (transport.Transport, error) {
	host := v.GetString("host")
	if host == "" {
		host, _ = props.GetString(property.PropCommHost, "")
	}
	port := v.GetInt("port")
	switch v.GetString("transport") {
	case "file":
		return transport.NewFile(v.GetString("file")), nil
	case "socket":
		return transport.NewSocket(host, port), nil
	case "serial":
		return transport.NewSerial(v.GetString("serial-device"), v.GetInt("serial-baud")), nil
	case "gprs":
		apn := v.GetString("apn")
		if apn == "" {
			apn, _ = props.GetString(property.PropCommAPNName, "")
		}
		apnUser, _ := props.GetString(property.PropCommAPNUser, "")
		apnPass, _ := props.GetString(property.PropCommAPNPass, "")
		return transport.NewGPRS(transport.GPRSConfig{
			Device:  v.GetString("modem-device"),
			Baud:    115200,
			APN:     apn,
			APNUser: apnUser,
			APNPass: apnPass,
			Host:    host,
			Port:    port,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", v.GetString("transport"))
	}
}
