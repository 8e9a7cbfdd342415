// tsltest talks to a Santec TSL-510: it prints the identity and status,
// optionally turns the diode on and waits out the warmup, then sets the
// wavelength and power and reads back the actual power
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/cavitytune/comm"
	"github.com/nasa-jpl/cavitytune/mathx"
	"github.com/nasa-jpl/cavitytune/santec"
)

func warmup(d time.Duration) error {
	cfg := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           "laser diode warming up",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopMessage:       "warm",
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		StopFailMessage:   "warmup interrupted",
	}
	spin, err := yacspin.New(cfg)
	if err != nil {
		// no terminal, wait without the spinner
		time.Sleep(d)
		return nil
	}
	if err = spin.Start(); err != nil {
		time.Sleep(d)
		return nil
	}
	end := time.Now().Add(d)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for now := range tick.C {
		left := end.Sub(now).Round(time.Second)
		if left <= 0 {
			break
		}
		spin.Message(fmt.Sprintf("laser diode warming up, %v left", left))
	}
	return spin.Stop()
}

func main() {
	var (
		addr      = flag.String("addr", "/dev/ttyUSB0", "serial port or host:port")
		transport = flag.String("transport", "", "serial, tcp, or usbtmc; inferred from addr if empty")
		baud      = flag.Int("baud", 9600, "serial baud rate")
		mock      = flag.Bool("mock", false, "use an in-memory laser")
		on        = flag.Bool("on", false, "turn the diode on and wait for it to warm up")
		wvl       = flag.Float64("wvl", 0, "wavelength to set, nm; 0 leaves it alone")
		power     = flag.Float64("power", 0, "power to set")
		unit      = flag.String("unit", "dBm", "unit of -power, dBm or mW")
		setPower  = flag.Bool("setpower", false, "send -power")
	)
	flag.Parse()

	var (
		t   *santec.TSL510
		err error
	)
	if *mock {
		t = santec.New(santec.NewMock(), santec.DefaultLimits)
	} else {
		cfg := comm.Config{Addr: *addr, Transport: *transport, Baud: *baud}
		t, err = santec.Open(cfg, santec.DefaultLimits)
		if err != nil {
			log.Fatal(err)
		}
	}
	defer t.Close()

	idn, err := t.Identify()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(idn)
	lim, err := t.RefreshLimits()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wavelength %g-%g nm, power %g-%g dBm\n", lim.Wavelength.Min, lim.Wavelength.Max, lim.Power.Min, lim.Power.Max)
	st, err := t.Status()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%+v\n", st)

	if *on && !st.Emission {
		if err = t.SetEmission(true); err != nil {
			log.Fatal(err)
		}
		wait := santec.LDWarmup
		if *mock {
			wait = 3 * time.Second
		}
		if err = warmup(wait); err != nil {
			log.Println(err)
		}
	}
	if *wvl != 0 {
		if err = t.SetWavelength(*wvl); err != nil {
			log.Fatal(err)
		}
	}
	if *setPower {
		u, err := santec.ParsePowerUnit(*unit)
		if err != nil {
			log.Fatal(err)
		}
		if err = t.SetPower(*power, u); err != nil {
			log.Fatal(err)
		}
	}

	nm, err := t.GetWavelength()
	if err != nil {
		log.Fatal(err)
	}
	dbm, err := t.GetPowerTrue(santec.DBm)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%v nm, %v dBm (%v mW) actual\n", mathx.Round(nm, 1e-4), mathx.Round(dbm, 1e-3), mathx.Round(santec.DBmToMilliwatt(dbm), 1e-4))
}
