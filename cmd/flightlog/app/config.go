package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	DBPath     string
	FlightID   string
	OutputFile string
	List       bool
	Width      int
	Height     int
	TimeZone   *time.Location
	StartTime  *time.Time
	EndTime    *time.Time
}

func NewConfig() *Config {
	return &Config{
		Width:    defaultWidth,
		Height:   defaultHeight,
		TimeZone: time.Local,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return ParseArgs(flag.CommandLine, os.Args[1:])
}

// ParseArgs reads the chart options from args using fs
func ParseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var tz, start, end string
	fs.StringVar(&c.DBPath, "db", "", "Path to the flight recorder database file")
	fs.StringVar(&c.FlightID, "f", "", "Flight ID, the latest flight when omitted")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, .png is appended when missing")
	fs.BoolVar(&c.List, "list", false, "List recorded flights and exit")
	fs.IntVar(&c.Width, "width", defaultWidth, "Image width in pixels")
	fs.IntVar(&c.Height, "height", defaultHeight, "Image height in pixels")
	fs.StringVar(&tz, "tz", "Local", "Time zone used for time labels")
	fs.StringVar(&start, "start", "", "Only plot samples from this time on (RFC 3339)")
	fs.StringVar(&end, "end", "", "Only plot samples up to this time (RFC 3339)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if !c.List && c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if c.Width <= 0 || c.Height <= 0 {
		err = fmt.Errorf("invalid image size: %dx%d", c.Width, c.Height)
	}
	if err != nil {
		fs.Usage()
		return nil, err
	}

	if c.TimeZone, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid time zone '%s': %w", tz, err)
	}
	if c.StartTime, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("invalid start time: %w", err)
	}
	if c.EndTime, err = parseTime(end); err != nil {
		return nil, fmt.Errorf("invalid end time: %w", err)
	}
	if c.StartTime != nil && c.EndTime != nil && c.EndTime.Before(*c.StartTime) {
		return nil, errors.New("end time is before start time")
	}

	if c.OutputFile != "" && !strings.EqualFold(filepath.Ext(c.OutputFile), ".png") {
		c.OutputFile += ".png"
	}
	return c, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
