// Package appconf loads the service configuration: a YAML file describing
// the watched routes, overlaid with environment variables.
package appconf

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"ovwatch.transit.nl/internal/models"
)

const (
	DefaultPort               = 4000
	DefaultPollInterval       = 60 * time.Second
	DefaultNotifyBefore       = 30
	DefaultMinDelay           = 5
	DefaultNumDepartures      = 5
	DefaultMinTransferMinutes = 5
	DefaultConcurrency        = 4
	DefaultRequestsPerSecond  = 2.0
	DefaultRateLimit          = 100
	DefaultOVapiBaseURL       = "http://v0.ovapi.nl"
	DefaultNSBaseURL          = "https://gateway.apiportal.ns.nl/reisinformatie-api/api/v2"
	DefaultAlertsURL          = "https://gtfs.ovapi.nl/nl/alerts.pb"

	minNotifyBefore, maxNotifyBefore = 5, 120
	minDelay, maxDelay               = 1, 60
)

// Config is the resolved runtime configuration.
type Config struct {
	Port      int
	Env       Environment
	LogLevel  string
	LogFormat string
	// APIKeys guard the /api endpoints. Empty leaves them open.
	APIKeys   []string
	RateLimit int

	OVapiBaseURL      string
	NSBaseURL         string
	NSAPIKey          string
	AlertsURL         string
	GTFSPath          string
	RequestsPerSecond float64

	NATSURL       string
	NotifyTargets []string

	PollInterval     time.Duration
	Concurrency      int
	ScheduleFallback bool

	Routes []models.RouteConfig
}

// Default returns a Config with every default applied and no routes.
func Default() Config {
	return Config{
		Port:              DefaultPort,
		Env:               Development,
		LogLevel:          "info",
		LogFormat:         "json",
		RateLimit:         DefaultRateLimit,
		OVapiBaseURL:      DefaultOVapiBaseURL,
		NSBaseURL:         DefaultNSBaseURL,
		AlertsURL:         DefaultAlertsURL,
		RequestsPerSecond: DefaultRequestsPerSecond,
		PollInterval:      DefaultPollInterval,
		Concurrency:       DefaultConcurrency,
		ScheduleFallback:  true,
		Routes:            []models.RouteConfig{},
	}
}

// File mirrors the YAML configuration file.
type File struct {
	Port      int    `yaml:"port" validate:"gte=0,lte=65535"`
	Env       string `yaml:"env" validate:"omitempty,oneof=development test production"`
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=json text"`

	APIKeys   []string `yaml:"api_keys" validate:"dive,required"`
	RateLimit *int     `yaml:"rate_limit" validate:"omitempty,gte=0"`

	Feeds FeedsFile `yaml:"feeds"`

	NATSURL       string   `yaml:"nats_url" validate:"omitempty,url"`
	NotifyTargets []string `yaml:"notify_targets" validate:"dive,required"`

	PollIntervalSeconds int   `yaml:"poll_interval" validate:"gte=0"`
	Concurrency         int   `yaml:"concurrency" validate:"gte=0,lte=64"`
	ScheduleFallback    *bool `yaml:"schedule_fallback"`

	Routes []RouteFile `yaml:"routes" validate:"dive"`
}

type FeedsFile struct {
	OVapiURL          string  `yaml:"ovapi_url" validate:"omitempty,url"`
	NSURL             string  `yaml:"ns_url" validate:"omitempty,url"`
	AlertsURL         string  `yaml:"alerts_url" validate:"omitempty,url"`
	GTFSPath          string  `yaml:"gtfs_path"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// RouteFile is one entry under routes. Optional numbers and toggles are
// pointers so that an explicit zero or false survives defaulting.
type RouteFile struct {
	Name        string    `yaml:"name"`
	Origin      string    `yaml:"origin"`
	Destination string    `yaml:"destination"`
	Source      string    `yaml:"source" validate:"omitempty,oneof=ovapi ns"`
	StopArea    bool      `yaml:"stop_area"`
	Reverse     bool      `yaml:"reverse"`
	ReturnTime  string    `yaml:"return_time"`
	LineFilter  string    `yaml:"line_filter"`
	Legs        []LegFile `yaml:"legs" validate:"dive"`

	MinTransferTime    *int     `yaml:"min_transfer_time" validate:"omitempty,gte=0"`
	NotifyBefore       *int     `yaml:"notify_before"`
	NotifyOnDelay      *bool    `yaml:"notify_on_delay"`
	NotifyOnDisruption *bool    `yaml:"notify_on_disruption"`
	MinDelayThreshold  *int     `yaml:"min_delay_threshold"`
	NotifyServices     []string `yaml:"notify_services"`
	NumDepartures      *int     `yaml:"num_departures" validate:"omitempty,gte=1,lte=20"`

	Days            []string `yaml:"days"`
	ExcludeHolidays bool     `yaml:"exclude_holidays"`
}

type LegFile struct {
	Origin        string `yaml:"origin" validate:"required"`
	Destination   string `yaml:"destination" validate:"required"`
	TransportType string `yaml:"transport_type" validate:"omitempty,oneof=bus tram metro train ferry"`
	LineFilter    string `yaml:"line_filter"`
}

// LoadFromFile reads, parses and validates a YAML configuration file.
func LoadFromFile(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags first, then the rules that span fields.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for i, r := range f.Routes {
		if err := r.validate(i); err != nil {
			return err
		}
	}
	return nil
}

func (r RouteFile) label(i int) string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Origin != "" || r.Destination != "":
		return r.Origin + "_" + r.Destination
	default:
		return fmt.Sprintf("#%d", i+1)
	}
}

func (r RouteFile) validate(i int) error {
	fail := func(field, reason string) error {
		return &ConfigError{Route: r.label(i), Field: field, Reason: reason}
	}

	if len(r.Legs) > 0 {
		if len(r.Legs) < 2 {
			return fail("legs", "a multi-leg route needs at least 2 legs")
		}
		if r.Reverse {
			return fail("reverse", "multi-leg routes cannot be reversed")
		}
	} else {
		if strings.TrimSpace(r.Origin) == "" {
			return fail("origin", "required")
		}
		if strings.TrimSpace(r.Destination) == "" {
			return fail("destination", "required")
		}
	}
	if r.Reverse && strings.TrimSpace(r.ReturnTime) == "" {
		return fail("return_time", "required when reverse is set")
	}
	if r.ReturnTime != "" {
		if _, err := time.Parse("15:04", r.ReturnTime); err != nil {
			return fail("return_time", "must be HH:MM")
		}
	}
	if r.NotifyBefore != nil && (*r.NotifyBefore < minNotifyBefore || *r.NotifyBefore > maxNotifyBefore) {
		return fail("notify_before", fmt.Sprintf("must be between %d and %d minutes", minNotifyBefore, maxNotifyBefore))
	}
	if r.MinDelayThreshold != nil && (*r.MinDelayThreshold < minDelay || *r.MinDelayThreshold > maxDelay) {
		return fail("min_delay_threshold", fmt.Sprintf("must be between %d and %d minutes", minDelay, maxDelay))
	}
	for _, d := range r.Days {
		if _, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]; !ok {
			return fail("days", fmt.Sprintf("unknown weekday %q", d))
		}
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ToAppConfig resolves a validated file against the defaults.
func (f *File) ToAppConfig() Config {
	cfg := Default()
	if f.Port != 0 {
		cfg.Port = f.Port
	}
	if f.Env != "" {
		cfg.Env = EnvFromString(f.Env)
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.LogFormat != "" {
		cfg.LogFormat = f.LogFormat
	}
	cfg.APIKeys = f.APIKeys
	cfg.RateLimit = intOr(f.RateLimit, DefaultRateLimit)
	if f.Feeds.OVapiURL != "" {
		cfg.OVapiBaseURL = f.Feeds.OVapiURL
	}
	if f.Feeds.NSURL != "" {
		cfg.NSBaseURL = f.Feeds.NSURL
	}
	if f.Feeds.AlertsURL != "" {
		cfg.AlertsURL = f.Feeds.AlertsURL
	}
	if f.Feeds.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = f.Feeds.RequestsPerSecond
	}
	cfg.GTFSPath = f.Feeds.GTFSPath
	cfg.NATSURL = f.NATSURL
	cfg.NotifyTargets = f.NotifyTargets
	if f.PollIntervalSeconds > 0 {
		cfg.PollInterval = time.Duration(f.PollIntervalSeconds) * time.Second
	}
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.ScheduleFallback != nil {
		cfg.ScheduleFallback = *f.ScheduleFallback
	}

	cfg.Routes = make([]models.RouteConfig, 0, len(f.Routes))
	for _, r := range f.Routes {
		cfg.Routes = append(cfg.Routes, r.toRoute(cfg.NotifyTargets))
	}
	return cfg
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (r RouteFile) toRoute(defaultTargets []string) models.RouteConfig {
	source := models.SourceOVapi
	if r.Source == string(models.SourceNS) {
		source = models.SourceNS
	}
	route := models.RouteConfig{
		Name:        r.Name,
		Origin:      strings.TrimSpace(r.Origin),
		Destination: strings.TrimSpace(r.Destination),
		Source:      source,
		StopArea:    r.StopArea,
		Reverse:     r.Reverse,
		ReturnTime:  r.ReturnTime,
		LineFilter:  models.ParseLineFilter(r.LineFilter),

		MinTransferMinutes: intOr(r.MinTransferTime, DefaultMinTransferMinutes),

		NotifyLeadMinutes:        intOr(r.NotifyBefore, DefaultNotifyBefore),
		NotifyOnDelay:            boolOr(r.NotifyOnDelay, true),
		NotifyOnDisruption:       boolOr(r.NotifyOnDisruption, true),
		MinDelayThresholdMinutes: intOr(r.MinDelayThreshold, DefaultMinDelay),
		NotifyServices:           r.NotifyServices,

		NumDepartures:   intOr(r.NumDepartures, DefaultNumDepartures),
		ExcludeHolidays: r.ExcludeHolidays,
	}
	if len(route.NotifyServices) == 0 {
		route.NotifyServices = defaultTargets
	}
	for _, leg := range r.Legs {
		route.Legs = append(route.Legs, models.LegConfig{
			Origin:        strings.TrimSpace(leg.Origin),
			Destination:   strings.TrimSpace(leg.Destination),
			TransportType: leg.TransportType,
			LineFilter:    models.ParseLineFilter(leg.LineFilter),
		})
	}
	for _, d := range r.Days {
		route.Days = append(route.Days, weekdays[strings.ToLower(strings.TrimSpace(d))])
	}
	return route
}
