// Command zipcast prints current weather and a daily forecast for a postal
// code or a position.
//
//	zipcast -zip 90210 -units metric
//	zipcast -locate
//	zipcast -lat 40.7128 -lon -74.0060
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/zipcast/zipcast/internal/config"
	"github.com/zipcast/zipcast/internal/forecast"
	"github.com/zipcast/zipcast/internal/geolocation"
	"github.com/zipcast/zipcast/internal/provider/resilience"
	"github.com/zipcast/zipcast/internal/session"
	"github.com/zipcast/zipcast/internal/weather"
	"github.com/zipcast/zipcast/internal/weather/openweathermap"
)

var errUsage = errors.New("exactly one of -zip, -locate or -lat/-lon is required")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "zipcast:", err)
		stop()
		os.Exit(1)
	}
}

type options struct {
	zip     string
	units   string
	locate  bool
	lat     float64
	lon     float64
	hasLat  bool
	hasLon  bool
	envFile string
	verbose bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options

	fs := flag.NewFlagSet("zipcast", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.zip, "zip", "", "5 character US postal code")
	fs.StringVar(&o.units, "units", string(weather.DefaultUnits), "unit system: imperial or metric")
	fs.BoolVar(&o.locate, "locate", false, "locate this machine by its public IP address")
	fs.Float64Var(&o.lat, "lat", 0, "latitude")
	fs.Float64Var(&o.lon, "lon", 0, "longitude")
	fs.StringVar(&o.envFile, "env", ".env", "optional dotenv file")
	fs.BoolVar(&o.verbose, "v", false, "log requests to stderr")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "lat":
			o.hasLat = true
		case "lon":
			o.hasLon = true
		}
	})

	if o.hasLat != o.hasLon {
		return o, errors.New("-lat and -lon must be given together")
	}

	modes := 0
	for _, set := range []bool{o.zip != "", o.locate, o.hasLat} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return o, errUsage
	}
	if o.zip != "" && !weather.IsCompletePostalCode(o.zip) {
		return o, fmt.Errorf("postal code %q must have %d characters", o.zip, weather.PostalCodeLength)
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	units, err := weather.ParseUnitSystem(opts.units)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.WarnLevel)
	if opts.verbose {
		log = log.Level(zerolog.DebugLevel)
	}

	zone, err := cfg.Location()
	if err != nil {
		return err
	}

	httpCfg := resilience.DefaultClientConfig(openweathermap.ProviderName)
	httpCfg.Timeout = cfg.ProviderTimeout
	httpCfg.RequestsPerSecond = cfg.ProviderRPS
	httpCfg.Burst = cfg.ProviderBurst

	provider := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     cfg.OpenWeatherAPIKey,
		BaseURL:    cfg.OpenWeatherBaseURL,
		HTTPClient: resilience.NewClient(httpCfg),
		Logger:     log,
	})

	coord := session.NewCoordinator(session.CoordinatorConfig{
		Provider: provider,
		Locator: geolocation.NewIPLocator(geolocation.IPLocatorConfig{
			Endpoint: cfg.GeolocationURL,
			Logger:   log,
		}),
		Aggregator: forecast.NewAggregator(forecast.AggregatorConfig{
			Location: zone,
			MaxDays:  cfg.ForecastDays,
		}),
		Units:  units,
		Logger: log,
	})

	var snap session.Snapshot
	switch {
	case opts.zip != "":
		snap = coord.SetPostalCode(ctx, opts.zip)
	case opts.locate:
		snap = coord.LocateCurrentPosition(ctx)
	default:
		snap = coord.LocateWith(ctx, geolocation.Static{Latitude: opts.lat, Longitude: opts.lon})
	}

	if snap.Error != "" {
		return errors.New(snap.Error)
	}
	return render(stdout, snap)
}

func render(w io.Writer, snap session.Snapshot) error {
	c := snap.Current
	if c == nil {
		return errors.New("no weather data")
	}
	units := snap.ResultUnits
	deg := units.TemperatureLabel()
	zone := time.FixedZone("", c.Timezone)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "%s, %s\t(%s, %s)\n", c.Name, c.Sys.Country, snap.ResultLocation, units)
	if cond, ok := c.PrimaryCondition(); ok {
		fmt.Fprintf(tw, "  %.1f%s\t%s\tfeels like %.1f%s\n", c.Main.Temp, deg, cond.Description, c.Main.FeelsLike, deg)
	}
	fmt.Fprintf(tw, "  humidity %.0f%%\twind %.1f %s\tvisibility %s\n",
		c.Main.Humidity, c.Wind.Speed, units.SpeedLabel(), units.FormatVisibility(c.Visibility))
	fmt.Fprintf(tw, "  sunrise %s\tsunset %s\tsky %s\n",
		weather.FormatClock(c.Sys.Sunrise, zone), weather.FormatClock(c.Sys.Sunset, zone), weather.SkyFor(c))

	if len(snap.Daily) > 0 {
		fmt.Fprintln(tw, "\nforecast")
	}
	for _, d := range snap.Daily {
		s := d.Sample
		desc := ""
		if len(s.Weather) > 0 {
			desc = s.Weather[0].Description
		}
		fmt.Fprintf(tw, "  %s\t%.1f%s\t%s\tpop %.0f%%\n",
			d.Date.Format("Mon Jan 02"), s.Main.Temp, deg, desc, s.Pop*100)
	}

	return tw.Flush()
}
