// Package dmtp assembles the OpenDMTP client core: a GPS-fed rule
// pipeline that encodes detected occurrences as typed binary events,
// queues them under priority, and ships them to a server over an
// interchangeable transport while honoring a connection-accounting
// policy.
//
// # Quick Start
//
// Build a core around a transport and run it:
//
//	core, err := dmtp.NewCore(
//	    dmtp.WithTransport(transport.NewSocket("tracker.example.net", 31000)),
//	    dmtp.WithIdentity("account", "device-1"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Feed NMEA lines from your receiver:
//	core.Acquisition.FeedLine(line, time.Now().Unix())
//
//	// And let the main loop sample, evaluate rules, and transmit:
//	core.Loop.Run(ctx)
//
// Everything is parameterized through the typed property store
// (core.Props); see the property package for the full key table.
//
// # Construction order
//
// The process-wide services initialize in a fixed order: property
// store, connection accounting, event queue, GPS acquisition,
// transports, protocol drivers, main loop. NewCore follows it.
package dmtp

import (
	"fmt"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/accounting"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/gps"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/mainloop"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/protocol"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/queue"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/transport"
)

// Version is the current library version.
const Version = "0.1.0"

// defaultEventQueueDepth bounds the process-wide event queue.
const defaultEventQueueDepth = 256

// Core bundles the process-wide services in their construction order.
type Core struct {
	Props       *property.Store
	Acct        *accounting.Accounting
	Events      *queue.Queue
	Acquisition *gps.Acquisition
	Drivers     []*protocol.Driver
	Loop        *mainloop.Loop
}

// Options configures NewCore.
type Options struct {
	// Transports become one protocol driver each, in order; index 0 is
	// primary.
	Transports []transport.Transport

	// PropertyFile, when set, is loaded at construction and saved by
	// the main loop's housekeeping.
	PropertyFile string

	// GeozoneFile, when set, preloads the zone table.
	GeozoneFile string

	// AccountID/DeviceID identify the device when no UniqueID binary
	// is configured.
	AccountID string
	DeviceID  string

	// QueueDepth overrides the event queue capacity. Zero means the
	// default.
	QueueDepth int
}

// Option is a functional option for configuring the Core.
type Option func(*Options)

// WithTransport appends a transport (and therefore a protocol driver).
func WithTransport(t transport.Transport) Option {
	return func(o *Options) { o.Transports = append(o.Transports, t) }
}

// WithPropertyFile loads and persists the property store at path.
func WithPropertyFile(path string) Option {
	return func(o *Options) { o.PropertyFile = path }
}

// WithGeozoneFile preloads the zone table from path.
func WithGeozoneFile(path string) Option {
	return func(o *Options) { o.GeozoneFile = path }
}

// WithIdentity sets the account and device IDs sent during
// identification.
func WithIdentity(account, device string) Option {
	return func(o *Options) { o.AccountID = account; o.DeviceID = device }
}

// WithQueueDepth overrides the event queue capacity.
func WithQueueDepth(n int) Option {
	return func(o *Options) { o.QueueDepth = n }
}

// NewCore constructs the full client core.
func NewCore(opts ...Option) (*Core, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.Transports) == 0 {
		return nil, fmt.Errorf("dmtp: at least one transport is required")
	}

	c := &Core{}
	c.Props = property.New(property.DefaultDefs())
	if o.PropertyFile != "" {
		if err := c.Props.Load(o.PropertyFile); err != nil {
			return nil, err
		}
	}
	if o.AccountID != "" {
		if err := c.Props.SetString(property.PropStateAccountID, o.AccountID); err != nil {
			return nil, err
		}
	}
	if o.DeviceID != "" {
		if err := c.Props.SetString(property.PropStateDeviceID, o.DeviceID); err != nil {
			return nil, err
		}
	}

	c.Acct = accounting.New(AccountingConfig(c.Props))

	depth := o.QueueDepth
	if depth <= 0 {
		depth = defaultEventQueueDepth
	}
	c.Events = queue.New(depth)
	c.Events.EnableOverwrite(true)

	c.Acquisition = gps.NewAcquisition()

	for i, t := range o.Transports {
		d := protocol.NewDriver(t, c.Props, c.Acct, c.Events)
		d.Index = i
		d.Primary = i == 0
		c.Drivers = append(c.Drivers, d)
	}

	c.Loop = mainloop.New(c.Props, c.Acquisition, c.Events, c.Drivers)
	c.Loop.PropertyFile = o.PropertyFile
	if o.GeozoneFile != "" {
		if err := c.Loop.GeoZone.Load(o.GeozoneFile); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AccountingConfig reads the connection policy out of the property
// store the way the protocol driver expects it.
func AccountingConfig(props *property.Store) accounting.Config {
	total, _ := props.GetUint32At(property.PropCommMaxConnections, 0, 8)
	duplex, _ := props.GetUint32At(property.PropCommMaxConnections, 1, 4)
	window, _ := props.GetUint32At(property.PropCommMaxConnections, 2, 60)
	minDelay, _ := props.GetUint32At(property.PropCommMinXmitDelay, 0, 180)
	minRate, _ := props.GetUint32At(property.PropCommMinXmitRate, 0, 180)
	maxRate, _ := props.GetUint32At(property.PropCommMaxXmitRate, 0, 3600)
	maxDup, _ := props.GetUint32At(property.PropCommMaxDuplexEvents, 0, 10)
	maxSim, _ := props.GetUint32At(property.PropCommMaxSimplexEvents, 0, 2)
	return accounting.Config{
		TotalQuota:       int(total),
		DuplexQuota:      int(duplex),
		WindowMinutes:    int(window),
		MinXmitDelay:     int64(minDelay),
		MinXmitRate:      int64(minRate),
		MaxXmitRate:      int64(maxRate),
		MaxDuplexEvents:  int(maxDup),
		MaxSimplexEvents: int(maxSim),
	}
}
