package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"periph.io/x/host/v3"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "tunesrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "yaml"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

// loadconfig unmarshals the koanf state into a Config
func loadconfig() Config {
	c := Config{}
	err := k.UnmarshalWithConf("", &c, koanf.UnmarshalConf{Tag: "yaml"})
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func root() {
	str := `tunesrv drives the tuning hardware of an optical cavity, a DAC8568 octal DAC
and a Santec TSL-510 tunable laser, and exposes an HTTP interface to them.

Usage:
	tunesrv <command>
	tunesrv run [config.yml]

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `tunesrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Run "tunesrv mkconf" to write the default configuration to tunesrv.yml.

A device with an empty Endpoint is not served.  Endpoints may look like any
variation between "cavity/dac" or "/cavity/dac/*", the leading and trailing
slashes, as well as the *, are added by the server if missing.

With Mock: true, the DAC sits on a recording SPI bus and the laser is an
in-memory instrument; no hardware is touched.

DAC:
	SPIPort        periph SPI port name, "" for the first port
	SPIHz          SCLK frequency, at most 50 MHz
	SPIMode        0-3
	ReferenceVolts reference voltage
	Gain           output amplifier gain; full scale = ReferenceVolts * Gain
	ClearPin       periph GPIO name wired to CLR, optional
	InitOnStart    reset, enable the internal reference and power all channels

Laser:
	Transport      serial, tcp, or usbtmc
	Addr           serial port or host:port
	Baud           serial baud rate
	VID, PID       USB ids for usbtmc
	PowerUnit      dBm or mW, the unit of power over HTTP
	Limits         Wavelength (nm) and Power (dBm) Min and Max
	RefreshLimits  read the limits from the laser at startup

Every device also serves GET and POST /lock; when locked, writes return 423.
GET /endpoints lists every route.`
	fmt.Println(str)
}

func mkconf() {
	c := loadconfig()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconfig()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("tunesrv version %v\n", Version)
}

func run() {
	c := loadconfig()
	if len(os.Args) > 2 {
		// an explicit file bypasses tunesrv.yml
		var err error
		c, err = LoadYaml(os.Args[2])
		if err != nil {
			log.Fatal(err)
		}
	}
	if !c.Mock {
		if _, err := host.Init(); err != nil {
			log.Fatal(err)
		}
	}
	devs, err := OpenDevices(c)
	if err != nil {
		log.Fatal(err)
	}
	mux, err := BuildMux(c, devs)
	if err != nil {
		devs.Close()
		log.Fatal(err)
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		if err := devs.Close(); err != nil {
			log.Println("error closing devices:", err)
		}
		os.Exit(0)
	}()
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
