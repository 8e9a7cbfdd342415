package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-yaml/yaml"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/nasa-jpl/cavitytune/comm"
	"github.com/nasa-jpl/cavitytune/generichttp"
	"github.com/nasa-jpl/cavitytune/generichttp/daq"
	"github.com/nasa-jpl/cavitytune/santec"
	"github.com/nasa-jpl/cavitytune/server/middleware/locker"
	"github.com/nasa-jpl/cavitytune/ti"
)

// DACSetup holds the bus and calibration of the DAC8568
type DACSetup struct {
	// Endpoint is the URL the DAC is served under, e.g. "cavity/dac".
	// Empty disables the DAC.
	Endpoint string `yaml:"Endpoint"`

	// SPIPort is the periph name of the SPI port, e.g. "/dev/spidev0.0" or "SPI0.0"
	SPIPort string `yaml:"SPIPort"`

	// SPIHz is the SCLK frequency
	SPIHz int64 `yaml:"SPIHz"`

	// SPIMode is the SPI mode, 0-3
	SPIMode int `yaml:"SPIMode"`

	// ReferenceVolts and Gain give full scale = ReferenceVolts * Gain
	ReferenceVolts float64 `yaml:"ReferenceVolts"`
	Gain           float64 `yaml:"Gain"`

	// ClearPin is the periph name of the GPIO wired to CLR, optional
	ClearPin string `yaml:"ClearPin"`

	// InitOnStart resets the part, enables the reference and powers all channels
	InitOnStart bool `yaml:"InitOnStart"`

	// Debug logs every word sent
	Debug bool `yaml:"Debug"`
}

// LaserSetup holds the connection and limits of the TSL-510
type LaserSetup struct {
	// Endpoint is the URL the laser is served under.  Empty disables the laser.
	Endpoint string `yaml:"Endpoint"`

	// Addr is a serial port or host:port
	Addr string `yaml:"Addr"`

	// Transport is serial, tcp, or usbtmc
	Transport string `yaml:"Transport"`

	Baud    int           `yaml:"Baud"`
	VID     uint16        `yaml:"VID"`
	PID     uint16        `yaml:"PID"`
	Timeout time.Duration `yaml:"Timeout"`

	// PowerUnit is the unit of power over HTTP, dBm or mW
	PowerUnit string `yaml:"PowerUnit"`

	// Limits are enforced before anything is sent
	Limits santec.Limits `yaml:"Limits"`

	// RefreshLimits replaces Limits with the ranges the laser reports
	RefreshLimits bool `yaml:"RefreshLimits"`
}

// Config is a struct that holds the initialization parameters for the
// DAC and the laser.  It is to be populated by a yaml/unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Mock replaces the hardware with in-memory fakes
	Mock bool `yaml:"Mock"`

	DAC   DACSetup   `yaml:"DAC"`
	Laser LaserSetup `yaml:"Laser"`
}

// DefaultConfig serves both devices on :8000, the laser on /dev/ttyUSB0
func DefaultConfig() Config {
	return Config{
		Addr: ":8000",
		DAC: DACSetup{
			Endpoint:       "dac",
			SPIPort:        "",
			SPIHz:          int64(ti.DefaultSPIConfig.Frequency / physic.Hertz),
			SPIMode:        int(ti.DefaultSPIConfig.Mode),
			ReferenceVolts: ti.DefaultCalibration.ReferenceVolts,
			Gain:           ti.DefaultCalibration.Gain,
			InitOnStart:    true,
		},
		Laser: LaserSetup{
			Endpoint:  "laser",
			Addr:      "/dev/ttyUSB0",
			Transport: comm.TransportSerial,
			Baud:      9600,
			Timeout:   comm.DefaultTimeout,
			PowerUnit: string(santec.DBm),
			Limits:    santec.DefaultLimits,
		},
	}
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// Devices holds the hardware the server talks to.  Either may be nil.
type Devices struct {
	DAC   *ti.DAC8568
	Laser *santec.TSL510
}

// Close releases every device, combining the errors
func (d *Devices) Close() error {
	var err error
	if d.DAC != nil {
		err = multierr.Append(err, d.DAC.Close())
	}
	if d.Laser != nil {
		err = multierr.Append(err, d.Laser.Close())
	}
	return err
}

// OpenDevices connects to the hardware named in c.  In mock mode the DAC
// sits on a recording SPI bus and the laser is an in-memory instrument.
// Devices opened before a failure are closed.
func OpenDevices(c Config) (*Devices, error) {
	devs := &Devices{}
	if c.DAC.Endpoint != "" {
		if err := openDAC(c, devs); err != nil {
			return nil, multierr.Append(err, devs.Close())
		}
	}
	if c.Laser.Endpoint != "" {
		if err := openLaser(c, devs); err != nil {
			return nil, multierr.Append(err, devs.Close())
		}
	}
	return devs, nil
}

func openDAC(c Config, devs *Devices) error {
	cal := ti.Calibration{ReferenceVolts: c.DAC.ReferenceVolts, Gain: c.DAC.Gain}
	opts := []ti.Option{ti.WithDebug(c.DAC.Debug)}
	var (
		dac *ti.DAC8568
		err error
	)
	if c.Mock {
		opts = append(opts, ti.WithClearPin(&gpiotest.Pin{N: "CLR", L: gpio.High}))
		dac, err = ti.NewSPI(&spitest.Record{}, ti.DefaultSPIConfig, cal, opts...)
	} else {
		if c.DAC.ClearPin != "" {
			p := gpioreg.ByName(c.DAC.ClearPin)
			if p == nil {
				return fmt.Errorf("no GPIO named %q for the DAC clear pin", c.DAC.ClearPin)
			}
			opts = append(opts, ti.WithClearPin(p))
		}
		spiCfg := ti.SPIConfig{
			Frequency: physic.Frequency(c.DAC.SPIHz) * physic.Hertz,
			Mode:      spi.Mode(c.DAC.SPIMode)}
		dac, err = ti.Open(c.DAC.SPIPort, spiCfg, cal, opts...)
	}
	if err != nil {
		return err
	}
	devs.DAC = dac
	if c.DAC.InitOnStart {
		if err = dac.Init(); err != nil {
			return fmt.Errorf("initializing DAC8568: %w", err)
		}
	}
	return nil
}

func openLaser(c Config, devs *Devices) error {
	lc := c.Laser
	if c.Mock {
		devs.Laser = santec.New(santec.NewMock(), lc.Limits)
	} else {
		tsl, err := santec.Open(comm.Config{
			Addr:      lc.Addr,
			Transport: lc.Transport,
			Baud:      lc.Baud,
			VID:       lc.VID,
			PID:       lc.PID,
			Timeout:   lc.Timeout}, lc.Limits)
		if err != nil {
			return err
		}
		devs.Laser = tsl
	}
	if lc.RefreshLimits {
		l, err := devs.Laser.RefreshLimits()
		if err != nil {
			return fmt.Errorf("reading laser limits: %w", err)
		}
		log.Printf("laser limits %.3f-%.3f nm, %.2f-%.2f dBm\n", l.Wavelength.Min, l.Wavelength.Max, l.Power.Min, l.Power.Max)
	}
	return nil
}

// BuildMux mounts an HTTP interface for every device under its endpoint,
// each with its own lock.  The mux serves a special route, /endpoints,
// which returns a map of mount point to routes as JSON.
func BuildMux(c Config, devs *Devices) (chi.Router, error) {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	mount := func(endpoint string, httper generichttp.HTTPer) {
		hndlS := generichttp.SubMuxSanitize(endpoint)
		lock := locker.New()
		locker.Inject(httper, lock)
		supergraph[hndlS] = httper.RT().Endpoints()
		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}

	if devs.DAC != nil {
		mount(c.DAC.Endpoint, daq.NewHTTPDAC(devs.DAC))
	}
	if devs.Laser != nil {
		unit := santec.DBm
		if c.Laser.PowerUnit != "" {
			u, err := santec.ParsePowerUnit(c.Laser.PowerUnit)
			if err != nil {
				return nil, err
			}
			unit = u
		}
		mount(c.Laser.Endpoint, santec.NewHTTPWrapper(devs.Laser, unit))
	}
	if len(supergraph) == 0 {
		return nil, fmt.Errorf("no endpoints configured")
	}

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root, nil
}
