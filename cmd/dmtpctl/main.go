// dmtpctl edits tracker configuration offline. The tracker core reads
// and writes the documented on-disk formats (key=value property files,
// packed binary geozone files); dmtpctl maintains a human-editable YAML
// source for each and renders it through the same core entry points, so
// the two can never disagree about the byte layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/event"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/rules"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  dmtpctl props compile <in.yaml> <out.conf>   render YAML properties to a property file
  dmtpctl props show <file.conf>               print a property file's effective values
  dmtpctl zones compile <in.yaml> <out.bin>    render YAML zones to a packed geozone file
  dmtpctl zones show <file.bin>                print a geozone file's contents
`)
	os.Exit(2)
}

func main() {
	flags := pflag.NewFlagSet("dmtpctl", pflag.ExitOnError)
	_ = flags.Parse(os.Args[1:])
	args := flags.Args()
	if len(args) < 2 {
		usage()
	}
	var err error
	switch args[0] + " " + args[1] {
	case "props compile":
		err = propsCompile(arg(args, 2), arg(args, 3))
	case "props show":
		err = propsShow(arg(args, 2))
	case "zones compile":
		err = zonesCompile(arg(args, 2), arg(args, 3))
	case "zones show":
		err = zonesShow(arg(args, 2))
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "dmtpctl:", err)
		os.Exit(1)
	}
}

func arg(args []string, i int) string {
	if i >= len(args) {
		usage()
	}
	return args[i]
}

// propsCompile reads a flat YAML map of property name (or 0xNNNN key)
// to value text and renders it as a key=value property file.
func propsCompile(inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	var values map[string]string
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parsing %s: %w", inPath, err)
	}
	store := property.New(property.DefaultDefs())
	tmp, err := os.CreateTemp("", "dmtpctl-props-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	for name, value := range values {
		fmt.Fprintf(tmp, "%s=%s\n", name, value)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Round through Load so unknown names and malformed values get the
	// same treatment the tracker itself would give them.
	if err := store.Load(tmp.Name()); err != nil {
		return err
	}
	return store.Save(outPath, true)
}

func propsShow(path string) error {
	store := property.New(property.DefaultDefs())
	if err := store.Load(path); err != nil {
		return err
	}
	for _, def := range property.DefaultDefs() {
		if !store.IsNonDefault(def.Key) {
			continue
		}
		text, err := store.PrintToString(def.Key)
		if err != nil {
			continue
		}
		fmt.Printf("%s=%s\n", def.Name, text)
	}
	return nil
}

// zoneYAML is one zone in the YAML source file.
type zoneYAML struct {
	ID     uint32       `yaml:"id"`
	Type   string       `yaml:"type"` // point-radius | rect | swept | delta-rect
	Radius float64      `yaml:"radius_m,omitempty"`
	Points [][2]float64 `yaml:"points"`
}

func zoneType(name string) (rules.ZoneType, error) {
	switch name {
	case "point-radius":
		return rules.ZoneDualPointRadius, nil
	case "rect":
		return rules.ZoneBoundedRect, nil
	case "swept":
		return rules.ZoneSweptPointRadius, nil
	case "delta-rect":
		return rules.ZoneDeltaRect, nil
	default:
		return 0, fmt.Errorf("unknown zone type %q", name)
	}
}

func zonesCompile(inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	var zones []zoneYAML
	if err := yaml.Unmarshal(data, &zones); err != nil {
		return fmt.Errorf("parsing %s: %w", inPath, err)
	}
	gz := rules.NewGeoZone(property.New(property.DefaultDefs()), nil)
	for _, zy := range zones {
		zt, err := zoneType(zy.Type)
		if err != nil {
			return err
		}
		z := rules.Zone{ID: rules.ZoneID(zy.ID), Type: zt, Radius: zy.Radius}
		if len(zy.Points) > 0 {
			z.Point0 = event.Point{Lat: zy.Points[0][0], Lon: zy.Points[0][1]}
		}
		if len(zy.Points) > 1 {
			z.Point1 = event.Point{Lat: zy.Points[1][0], Lon: zy.Points[1][1]}
		}
		if err := gz.AddZone(z); err != nil {
			return fmt.Errorf("zone %d: %w", zy.ID, err)
		}
	}
	return gz.Save(outPath)
}

func zonesShow(path string) error {
	gz := rules.NewGeoZone(property.New(property.DefaultDefs()), nil)
	if err := gz.Load(path); err != nil {
		return err
	}
	for _, z := range gz.Zones() {
		fmt.Printf("zone %d type=%d radius=%.0fm p0=(%.5f,%.5f) p1=(%.5f,%.5f)\n",
			z.ID, z.Type, z.Radius,
			z.Point0.Lat, z.Point0.Lon, z.Point1.Lat, z.Point1.Lon)
	}
	return nil
}
